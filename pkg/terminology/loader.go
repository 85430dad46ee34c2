package terminology

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed codelists.yaml
var builtinCodelists []byte

// Package is the on-disk form of a set of codelists (YAML or JSON).
type Package struct {
	Codelists []*Codelist `yaml:"codelists" json:"codelists"`
}

// Builtin returns a registry preloaded with the standard codelists shipped with sdtmflow.
func Builtin() (*Registry, error) {
	reg := NewRegistry()
	if err := reg.load(builtinCodelists); err != nil {
		return nil, fmt.Errorf("failed to load builtin codelists: %w", err)
	}
	return reg, nil
}

// LoadFile adds codelists from a YAML, JSON or CSV file.
func (r *Registry) LoadFile(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open codelist file: %w", err)
		}
		defer f.Close()
		return r.LoadCSV(f)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read codelist file %s: %w", path, err)
	}
	if err := r.load(data); err != nil {
		return fmt.Errorf("codelist file %s: %w", path, err)
	}
	return nil
}

// load parses a codelist package; yaml.v3 also accepts JSON documents.
func (r *Registry) load(data []byte) error {
	var pkg Package
	if err := yaml.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("failed to parse codelists: %w", err)
	}
	for _, cl := range pkg.Codelists {
		if err := r.Add(cl); err != nil {
			return err
		}
	}
	return nil
}

type csvColumns struct {
	codelist   int
	value      int
	alias      int
	extensible int
	name       int
}

func findColumn(headers []string, names ...string) int {
	for i, h := range headers {
		for _, name := range names {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

// LoadCSV adds codelists from a concept-map style CSV. Columns are located by header name:
// codelist, submission_value (or value), alias, extensible and name. Each row contributes one
// alias; rows sharing a submission value are merged into one term.
func (r *Registry) LoadCSV(rd io.Reader) error {
	reader := csv.NewReader(rd)
	reader.FieldsPerRecord = -1
	headers, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read codelist csv header: %w", err)
	}

	cols := csvColumns{
		codelist:   findColumn(headers, "codelist", "codelist_id"),
		value:      findColumn(headers, "submission_value", "value"),
		alias:      findColumn(headers, "alias", "source_value"),
		extensible: findColumn(headers, "extensible"),
		name:       findColumn(headers, "name", "codelist_name"),
	}
	if cols.codelist == -1 || cols.value == -1 {
		return fmt.Errorf("codelist csv requires codelist and submission_value columns")
	}

	lists := make(map[string]*Codelist)
	terms := make(map[string]map[string]*Term)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("codelist csv line %d: %w", line, err)
		}

		id := cell(row, cols.codelist)
		value := cell(row, cols.value)
		if id == "" || value == "" {
			continue
		}

		cl, ok := lists[id]
		if !ok {
			cl = &Codelist{ID: id, Name: cell(row, cols.name)}
			lists[id] = cl
			terms[id] = make(map[string]*Term)
		}
		if ext := cell(row, cols.extensible); ext != "" {
			b, err := strconv.ParseBool(ext)
			if err != nil {
				b = strings.EqualFold(ext, "Y") || strings.EqualFold(ext, "YES")
			}
			cl.Extensible = b
		}

		term, ok := terms[id][value]
		if !ok {
			term = &Term{Value: value}
			terms[id][value] = term
		}
		if alias := cell(row, cols.alias); alias != "" && alias != value {
			term.Aliases = append(term.Aliases, alias)
		}
	}

	ids := make([]string, 0, len(lists))
	for id := range lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		cl := lists[id]
		values := make([]string, 0, len(terms[id]))
		for v := range terms[id] {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			cl.Terms = append(cl.Terms, *terms[id][v])
		}
		if err := r.Add(cl); err != nil {
			return err
		}
	}
	return nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Save writes the given codelists to path as YAML.
func Save(path string, lists []*Codelist) error {
	data, err := yaml.Marshal(Package{Codelists: lists})
	if err != nil {
		return fmt.Errorf("failed to marshal codelists: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write codelists to %s: %w", path, err)
	}
	return nil
}
