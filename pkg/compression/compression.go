package compression

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression codec for published artifacts.
type Algorithm string

const (
	None   Algorithm = ""
	LZ4    Algorithm = "lz4"
	Snappy Algorithm = "snappy"
	Zstd   Algorithm = "zstd"
)

var extensions = map[Algorithm]string{
	LZ4:    ".lz4",
	Snappy: ".sz",
	Zstd:   ".zst",
}

// ParseAlgorithm accepts the configured codec name; "none" and "" disable compression.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch algo := Algorithm(strings.ToLower(strings.TrimSpace(name))); algo {
	case "none", None:
		return None, nil
	case LZ4, Snappy, Zstd:
		return algo, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", name)
	}
}

// Detect infers the codec from an artifact file name.
func Detect(name string) Algorithm {
	ext := filepath.Ext(name)
	for algo, e := range extensions {
		if e == ext {
			return algo
		}
	}
	return None
}

// Compressor encodes whole artifacts in memory. Implementations are safe for concurrent use.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Algorithm() Algorithm
	// Extension is appended to artifact names, e.g. "vs.csv" -> "vs.csv.zst".
	Extension() string
}

func NewCompressor(algo Algorithm) (Compressor, error) {
	switch algo {
	case None:
		return noneCompressor{}, nil
	case LZ4:
		return lz4Compressor{}, nil
	case Snappy:
		return snappyCompressor{}, nil
	case Zstd:
		return zstdCompressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algo)
	}
}

type noneCompressor struct{}

func (noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noneCompressor) Algorithm() Algorithm                   { return None }
func (noneCompressor) Extension() string                      { return "" }

type lz4Compressor struct{}

func (lz4Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, lz4.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Compressor) Algorithm() Algorithm { return LZ4 }
func (lz4Compressor) Extension() string    { return extensions[LZ4] }

// Artifacts are small enough that the block format is used instead of the framed stream.
type snappyCompressor struct{}

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (snappyCompressor) Algorithm() Algorithm { return Snappy }
func (snappyCompressor) Extension() string    { return extensions[Snappy] }

// The zstd encoder and decoder are expensive to build and safe for concurrent EncodeAll/DecodeAll.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

type zstdCompressor struct{}

func (zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc, _, err := zstdCodecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(data, nil), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	_, dec, err := zstdCodecs()
	if err != nil {
		return nil, err
	}
	return dec.DecodeAll(data, nil)
}

func (zstdCompressor) Algorithm() Algorithm { return Zstd }
func (zstdCompressor) Extension() string    { return extensions[Zstd] }
