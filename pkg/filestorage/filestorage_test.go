package filestorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/sdtmflow/internal/config"
	"github.com/user/sdtmflow/pkg/compression"
)

func TestPublishLocal(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()

	storage, err := NewLocalStorage(base)
	if err != nil {
		t.Fatal(err)
	}
	zstd, _ := compression.NewCompressor(compression.Zstd)
	pub := NewPublisher(storage, zstd, "study")

	src := filepath.Join(t.TempDir(), "vs.csv")
	content := "STUDYID,DOMAIN\nSTUDY,VS\n"
	if err := os.WriteFile(src, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	art, err := pub.PublishFile(ctx, "run-1", src)
	if err != nil {
		t.Fatalf("PublishFile: %v", err)
	}
	if art.Name != "study/run-1/vs.csv.zst" || art.Compression != compression.Zstd {
		t.Errorf("unexpected artifact: %+v", art)
	}
	if !strings.HasPrefix(art.URL, base) {
		t.Errorf("expected URL under %s, got %s", base, art.URL)
	}

	data, err := Fetch(ctx, storage, art.Name)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != content {
		t.Errorf("round trip mismatch: %q", data)
	}

	if err := storage.Delete(ctx, art.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.Open(ctx, art.Name); err == nil {
		t.Error("expected deleted artifact to be gone")
	}
}

func TestLocalStorageEscape(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := storage.Save(context.Background(), "../outside.csv", strings.NewReader("x")); err == nil {
		t.Error("expected names escaping the base directory to be rejected")
	}
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	s, err := NewStorage(ctx, config.PublishConfig{})
	if err != nil || s != nil {
		t.Fatalf("disabled publishing should yield no storage, got %v, %v", s, err)
	}

	s, err = NewStorage(ctx, config.PublishConfig{Type: "local", LocalDir: t.TempDir()})
	if err != nil || s.Type() != "local" {
		t.Fatalf("expected local storage, got %v, %v", s, err)
	}

	s, err = NewStorage(ctx, config.PublishConfig{Type: "s3", S3: config.S3Config{
		Endpoint: "http://localhost:9000", Bucket: "sdtm", AccessKeyID: "ak", SecretAccessKey: "sk",
	}})
	if err != nil {
		t.Fatalf("expected s3 storage, got %v", err)
	}
	if url, _ := s.GetURL(ctx, "run/vs.csv"); url != "s3://sdtm/run/vs.csv" || s.Type() != "s3" {
		t.Errorf("unexpected s3 storage: %s %s", s.Type(), url)
	}

	if _, err := NewStorage(ctx, config.PublishConfig{Type: "ftp"}); err == nil {
		t.Error("expected unknown type error")
	}

	pub, err := NewPublisherFromConfig(ctx, config.PublishConfig{Type: "local", LocalDir: t.TempDir(), Compression: "lz4"})
	if err != nil {
		t.Fatal(err)
	}
	if got := pub.Key("r", "/tmp/report.json"); got != "r/report.json.lz4" {
		t.Errorf("unexpected key %q", got)
	}
}
