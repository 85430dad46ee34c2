package json

import (
	"encoding/json"
	"testing"

	"github.com/user/sdtmflow/pkg/record"
)

func testRecord() *record.Record {
	rec := record.New("VS", record.Ref{File: "vitals.csv", Row: 3})
	rec.Set("STUDYID", "STUDY")
	rec.Set("USUBJID", "STUDY-408-001")
	rec.Set("VSSEQ", "2")
	rec.Set("VSTESTCD", "DIABP")
	rec.Set("VSORRES", "96")
	return rec
}

func TestJSONFormatter(t *testing.T) {
	formatter := NewJSONFormatter()
	data, err := formatter.Format(testRecord(), []string{"USUBJID", "VSSEQ", "VSTESTCD", "VSORRESU"})
	if err != nil {
		t.Fatalf("failed to format record: %v", err)
	}

	var parsed struct {
		Domain  string            `json:"domain"`
		Subject string            `json:"usubjid"`
		Seq     int               `json:"seq"`
		Source  record.Ref        `json:"source"`
		Values  map[string]string `json:"values"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to unmarshal formatted data: %v", err)
	}
	if parsed.Domain != "VS" || parsed.Subject != "STUDY-408-001" || parsed.Seq != 2 {
		t.Errorf("unexpected identifiers: %+v", parsed)
	}
	if parsed.Source.File != "vitals.csv" || parsed.Source.Row != 3 {
		t.Errorf("unexpected lineage: %+v", parsed.Source)
	}
	if parsed.Values["VSTESTCD"] != "DIABP" || parsed.Values["VSSEQ"] != "2" {
		t.Errorf("unexpected values: %v", parsed.Values)
	}
	if v, ok := parsed.Values["VSORRESU"]; !ok || v != "" {
		t.Errorf("expected empty VSORRESU to be kept, got %q, %v", v, ok)
	}
}

func TestJSONFormatterValuesMode(t *testing.T) {
	formatter := NewJSONFormatter()
	formatter.SetMode(ModeValues)
	formatter.OmitEmpty = true

	data, err := formatter.Format(testRecord(), nil)
	if err != nil {
		t.Fatal(err)
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		t.Fatal(err)
	}
	if values["DOMAIN"] != "VS" || values["VSSEQ"] != "2" || values["VSORRES"] != "96" {
		t.Errorf("unexpected values: %v", values)
	}
}

func TestJSONFormatterNilRecord(t *testing.T) {
	if _, err := NewJSONFormatter().Format(nil, nil); err == nil {
		t.Error("Expected error for nil record, got nil")
	}
}
