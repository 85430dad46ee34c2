package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/user/sdtmflow/pkg/compression"
)

// Storage defines the interface for artifact storage operations.
type Storage interface {
	// Save stores the content from the reader and returns a path/URI to the stored file.
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	// Open returns the stored content of a file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// GetURL returns a URL or path to access the file.
	GetURL(ctx context.Context, name string) (string, error)
	// Delete removes the file from storage.
	Delete(ctx context.Context, name string) error
	// Type returns the storage type (local, s3).
	Type() string
}

// Artifact is one published output file.
type Artifact struct {
	Name        string                `json:"name"`
	URL         string                `json:"url"`
	Size        int                   `json:"size"`
	Compression compression.Algorithm `json:"compression,omitempty"`
}

// Publisher copies run outputs to a Storage, optionally compressing them on the way.
type Publisher struct {
	storage    Storage
	compressor compression.Compressor
	prefix     string
}

func NewPublisher(storage Storage, compressor compression.Compressor, prefix string) *Publisher {
	if compressor == nil {
		compressor, _ = compression.NewCompressor(compression.None)
	}
	return &Publisher{storage: storage, compressor: compressor, prefix: prefix}
}

// Key returns the object name an artifact is stored under: <prefix>/<runID>/<file><ext>.
func (p *Publisher) Key(runID, file string) string {
	return path.Join(p.prefix, runID, filepath.Base(file)) + p.compressor.Extension()
}

// PublishFile reads a local output file and stores it under the run's key.
func (p *Publisher) PublishFile(ctx context.Context, runID, file string) (Artifact, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	return p.Publish(ctx, runID, filepath.Base(file), data)
}

// Publish compresses and stores an in-memory artifact.
func (p *Publisher) Publish(ctx context.Context, runID, name string, data []byte) (Artifact, error) {
	out, err := p.compressor.Compress(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to compress %s: %w", name, err)
	}
	key := p.Key(runID, name)
	url, err := p.storage.Save(ctx, key, bytes.NewReader(out))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to publish %s: %w", name, err)
	}
	return Artifact{Name: key, URL: url, Size: len(out), Compression: p.compressor.Algorithm()}, nil
}

// Fetch reads a published artifact back, decompressing by file extension.
func Fetch(ctx context.Context, storage Storage, name string) ([]byte, error) {
	rc, err := storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	c, err := compression.NewCompressor(compression.Detect(name))
	if err != nil {
		return nil, err
	}
	return c.Decompress(data)
}
