package json

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/user/sdtmflow/pkg/record"
)

type JSONMode string

const (
	// ModeFull wraps the variables with the record's lineage.
	ModeFull JSONMode = "full"
	// ModeValues emits only the column -> value object.
	ModeValues JSONMode = "values"
)

type JSONFormatter struct {
	Mode JSONMode
	// OmitEmpty drops variables without a value.
	OmitEmpty bool
}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{Mode: ModeFull}
}

func (f *JSONFormatter) SetMode(mode JSONMode) {
	f.Mode = mode
}

type fullRecord struct {
	Domain  string            `json:"domain"`
	Subject string            `json:"usubjid"`
	Seq     int               `json:"seq"`
	Source  record.Ref        `json:"source"`
	Values  map[string]string `json:"values"`
}

func (f *JSONFormatter) Format(rec *record.Record, columns []string) ([]byte, error) {
	if rec == nil {
		return nil, errors.New("cannot format nil record")
	}
	if len(columns) == 0 {
		columns = append([]string{record.VarStudyID, record.VarDomain, record.VarSubject, record.Var(rec.Domain, "SEQ")}, rec.Variables()...)
	}
	values := rec.Map(columns)
	if f.OmitEmpty {
		for k, v := range values {
			if v == "" {
				delete(values, k)
			}
		}
	}

	var v any = values
	if f.Mode != ModeValues {
		v = fullRecord{Domain: rec.Domain, Subject: rec.Subject, Seq: rec.Seq, Source: rec.Source, Values: values}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record to JSON: %w", err)
	}
	return data, nil
}
