package compression

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func dataset() []byte {
	var b strings.Builder
	b.WriteString("STUDYID,DOMAIN,USUBJID,VSSEQ,VSTESTCD,VSORRES\n")
	for i := 0; i < 200; i++ {
		b.WriteString("STUDY,VS,STUDY-408-001,1,SYSBP,120\n")
	}
	return []byte(b.String())
}

func TestCompressors(t *testing.T) {
	data := dataset()

	for _, algo := range []Algorithm{LZ4, Snappy, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			compressor, err := NewCompressor(algo)
			if err != nil {
				t.Fatalf("failed to create compressor for %s: %v", algo, err)
			}
			compressed, err := compressor.Compress(data)
			if err != nil {
				t.Fatalf("failed to compress with %s: %v", algo, err)
			}
			if len(compressed) >= len(data) {
				t.Errorf("%s: expected repetitive dataset to shrink, %d -> %d", algo, len(data), len(compressed))
			}
			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("failed to decompress with %s: %v", algo, err)
			}
			if !bytes.Equal(data, decompressed) {
				t.Errorf("%s: decompressed data does not match original", algo)
			}
			if Detect("vs.csv"+compressor.Extension()) != algo {
				t.Errorf("%s: extension %q not detected", algo, compressor.Extension())
			}
		})
	}
}

func TestEmptyData(t *testing.T) {
	for _, algo := range []Algorithm{LZ4, Snappy, Zstd, None} {
		t.Run(string(algo), func(t *testing.T) {
			compressor, err := NewCompressor(algo)
			if err != nil {
				t.Fatal(err)
			}
			compressed, err := compressor.Compress([]byte{})
			if err != nil {
				t.Fatalf("failed to compress empty data with %s: %v", algo, err)
			}
			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("failed to decompress empty data with %s: %v", algo, err)
			}
			if len(decompressed) != 0 {
				t.Errorf("%s: expected empty decompressed data, got %d bytes", algo, len(decompressed))
			}
		})
	}
}

func TestZstdConcurrent(t *testing.T) {
	compressor, _ := NewCompressor(Zstd)
	data := dataset()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := compressor.Compress(data)
			if err != nil {
				t.Error(err)
				return
			}
			d, err := compressor.Decompress(c)
			if err != nil || !bytes.Equal(d, data) {
				t.Errorf("concurrent round trip failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in   string
		want Algorithm
		err  bool
	}{
		{"", None, false},
		{"none", None, false},
		{" ZSTD ", Zstd, false},
		{"lz4", LZ4, false},
		{"snappy", Snappy, false},
		{"gzip", None, true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.err || got != tt.want {
			t.Errorf("ParseAlgorithm(%q) = %q, %v", tt.in, got, err)
		}
	}
	if Detect("report.json") != None {
		t.Error("plain files must not be detected as compressed")
	}
}
