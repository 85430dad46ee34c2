package terminology

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func builtin(t *testing.T) *Registry {
	t.Helper()
	reg, err := Builtin()
	if err != nil {
		t.Fatalf("failed to load builtin codelists: %v", err)
	}
	return reg
}

func TestMapAliases(t *testing.T) {
	reg := builtin(t)

	tests := []struct {
		codelist string
		value    string
		want     string
		status   Status
	}{
		{codelist: "AEREL", value: "1", want: "UNRELATED", status: Matched},
		{codelist: "AEREL", value: "not related", want: "UNRELATED", status: Matched},
		{codelist: "AEREL", value: " Unrelated ", want: "UNRELATED", status: Matched},
		{codelist: "SEX", value: "female", want: "F", status: Matched},
		{codelist: "UNIT", value: "MMHG", want: "mmHg", status: Matched},
		{codelist: "NY", value: "", status: Empty},
	}

	for _, tt := range tests {
		res, err := reg.Map(tt.codelist, tt.value)
		if err != nil {
			t.Fatalf("Map(%s, %q): %v", tt.codelist, tt.value, err)
		}
		if res.Value != tt.want || res.Status != tt.status {
			t.Errorf("Map(%s, %q) = %q/%s, want %q/%s", tt.codelist, tt.value, res.Value, res.Status, tt.want, tt.status)
		}
	}
}

func TestMapExtensibility(t *testing.T) {
	reg := builtin(t)

	res, err := reg.Map("SEX", "robot")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != NonConformant || res.Value != "" || res.Original != "robot" {
		t.Errorf("expected non-conformant with original kept, got %+v", res)
	}
	var nc *NonConformantValue
	if !errors.As(res.Err(), &nc) || nc.Codelist != "SEX" {
		t.Errorf("expected NonConformantValue error, got %v", res.Err())
	}

	res, err = reg.Map("RACE", "martian")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != SponsorDefined || res.Value != "MARTIAN" || res.Err() != nil {
		t.Errorf("expected sponsor-defined pass-through, got %+v", res)
	}
}

func TestMapUnknownCodelist(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Map("NOPE", "x"); err == nil {
		t.Fatal("expected error for unknown codelist")
	}
}

func TestAddRejectsConflictingAliases(t *testing.T) {
	reg := NewRegistry()
	err := reg.Add(&Codelist{ID: "X", Terms: []Term{
		{Value: "A", Aliases: []string{"1"}},
		{Value: "B", Aliases: []string{"1"}},
	}})
	if err == nil {
		t.Fatal("expected conflicting alias error")
	}
}

func TestLoadCSV(t *testing.T) {
	content := "Codelist,Name,Submission_Value,Alias,Extensible\n" +
		"LOC,Location,ARM,LEFT ARM,false\n" +
		"LOC,Location,ARM,RIGHT ARM,false\n" +
		"LOC,Location,LEG,,false\n"
	reg := NewRegistry()
	if err := reg.LoadCSV(strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}

	res, err := reg.Map("LOC", "right arm")
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != "ARM" {
		t.Errorf("expected ARM, got %q", res.Value)
	}
	cl, _ := reg.Get("LOC")
	if cl.Name != "Location" || cl.Extensible || len(cl.Values()) != 2 {
		t.Errorf("unexpected codelist %+v", cl)
	}
}

func TestLoadFileAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sponsor.yaml")
	if err := Save(path, []*Codelist{{ID: "ROUTE", Terms: []Term{{Value: "ORAL", Aliases: []string{"PO"}}}}}); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry()
	if err := reg.LoadFile(path); err != nil {
		t.Fatal(err)
	}
	res, _ := reg.Map("ROUTE", "po")
	if res.Value != "ORAL" {
		t.Errorf("expected ORAL, got %q", res.Value)
	}

	if err := reg.LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected saved file: %v", err)
	}
}

func TestClientFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("ids") != "ROUTE" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"codelists":[{"id":"ROUTE","extensible":true,"terms":[{"value":"ORAL","aliases":["PO"]}]}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret")
	lists, err := client.Fetch(context.Background(), "ROUTE")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(lists) != 1 || !lists[0].Extensible {
		t.Fatalf("unexpected codelists %+v", lists)
	}
	if v, ok := lists[0].Lookup("po"); !ok || v != "ORAL" {
		t.Errorf("expected fetched codelist to be indexed, got %q", v)
	}

	bad := NewClient(server.URL, "wrong")
	if _, err := bad.Fetch(context.Background(), "ROUTE"); err == nil {
		t.Error("expected error for unauthorized fetch")
	}
}
