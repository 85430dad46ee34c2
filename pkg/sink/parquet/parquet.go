package parquet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/user/sdtmflow/pkg/record"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// ParquetSink writes a dataset as a Parquet file with one optional column per variable.
// Sequence and study-day columns are INT64, --STRESN is DOUBLE, everything else UTF8.
type ParquetSink struct {
	filename     string
	parallelizer int64
}

func NewParquetSink(filename string, parallelizer int64) *ParquetSink {
	if parallelizer <= 0 {
		parallelizer = 4
	}
	return &ParquetSink{filename: filename, parallelizer: parallelizer}
}

type columnType int

const (
	utf8Column columnType = iota
	int64Column
	doubleColumn
)

func typeOf(domain, column string) columnType {
	switch {
	case column == record.Var(domain, "SEQ"), column == record.Var(domain, "DY"),
		column == record.Var(domain, "STDY"), column == record.Var(domain, "ENDY"):
		return int64Column
	case column == record.Var(domain, "STRESN"):
		return doubleColumn
	}
	return utf8Column
}

type schemaNode struct {
	Tag    string       `json:"Tag"`
	Fields []schemaNode `json:"Fields,omitempty"`
}

// Schema renders the JSON schema understood by the parquet-go JSON writer.
func Schema(ds *record.Dataset) (string, error) {
	root := schemaNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, col := range ds.Columns {
		if !validName(col) {
			return "", fmt.Errorf("column %q is not a valid parquet field name", col)
		}
		tag := fmt.Sprintf("name=%s, inname=%s, ", col, col)
		switch typeOf(ds.Domain, col) {
		case int64Column:
			tag += "type=INT64"
		case doubleColumn:
			tag += "type=DOUBLE"
		default:
			tag += "type=BYTE_ARRAY, convertedtype=UTF8"
		}
		root.Fields = append(root.Fields, schemaNode{Tag: tag + ", repetitiontype=OPTIONAL"})
	}
	data, err := json.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func validName(s string) bool {
	if s == "" || !(s[0] >= 'A' && s[0] <= 'Z') {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_')
	}) == -1
}

// row converts a record into the writer's JSON input. Empty or unparsable values become null.
func row(ds *record.Dataset, rec *record.Record) map[string]any {
	out := make(map[string]any, len(ds.Columns))
	for _, col := range ds.Columns {
		v := rec.Get(col)
		if v == "" {
			out[col] = nil
			continue
		}
		switch typeOf(ds.Domain, col) {
		case int64Column:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				out[col] = nil
				continue
			}
			out[col] = n
		case doubleColumn:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				out[col] = nil
				continue
			}
			out[col] = f
		default:
			out[col] = v
		}
	}
	return out
}

func (s *ParquetSink) Write(ctx context.Context, ds *record.Dataset) error {
	if ds == nil {
		return nil
	}
	schema, err := Schema(ds)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := s.filename + ".tmp"
	defer os.Remove(tmp)
	fw, err := local.NewLocalFileWriter(tmp)
	if err != nil {
		return fmt.Errorf("failed to create local file writer: %w", err)
	}

	pw, err := writer.NewJSONWriter(schema, fw, s.parallelizer)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	for i, rec := range ds.Records {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				pw.WriteStop()
				fw.Close()
				return err
			}
		}
		jsonData, err := json.Marshal(row(ds, rec))
		if err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("failed to marshal record to json: %w", err)
		}
		if err := pw.Write(string(jsonData)); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("failed to write record %s to parquet: %w", rec.Source, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return os.Rename(tmp, s.filename)
}

func (s *ParquetSink) Path() string {
	return s.filename
}

func (s *ParquetSink) Close() error {
	return nil
}
