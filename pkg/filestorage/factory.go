package filestorage

import (
	"context"
	"fmt"

	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/pkg/compression"
)

// NewStorage builds the configured storage. It returns (nil, nil) when publishing is disabled.
func NewStorage(ctx context.Context, cfg config.PublishConfig) (Storage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(
			ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
		)
	case "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "published"
		}
		return NewLocalStorage(dir)
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewPublisherFromConfig wires storage and compression; nil when publishing is disabled.
func NewPublisherFromConfig(ctx context.Context, cfg config.PublishConfig) (*Publisher, error) {
	storage, err := NewStorage(ctx, cfg)
	if err != nil || storage == nil {
		return nil, err
	}
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return nil, err
	}
	compressor, err := compression.NewCompressor(algo)
	if err != nil {
		return nil, err
	}
	return NewPublisher(storage, compressor, cfg.Prefix), nil
}
