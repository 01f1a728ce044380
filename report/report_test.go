package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chazu/pyrecon/decompiler"
	"github.com/chazu/pyrecon/diag"
)

func sampleResult() *decompiler.Result {
	return &decompiler.Result{
		ID:       uuid.MustParse("6f1d2c1e-8d2a-4d8e-9a57-0c3b1f7e2a10"),
		Path:     "pkg/mod.pyc",
		Revision: "3.8",
		Hash:     0xbeef,
		Units: []decompiler.UnitResult{
			{QualName: "<module>", FirstLine: 1},
			{QualName: "f", FirstLine: 3, Diagnostics: []diag.Diagnostic{
				diag.New(diag.NoMatch, nil, 4, 8, "POP_TOP"),
				diag.New(diag.UnknownOpcode, nil, 10, 12, "opcode 250"),
			}},
		},
		SelfCheck: &decompiler.SelfCheck{Stable: true},
	}
}

func TestNew(t *testing.T) {
	r := New(sampleResult())
	if r.ID != "6f1d2c1e-8d2a-4d8e-9a57-0c3b1f7e2a10" {
		t.Errorf("id = %q", r.ID)
	}
	if r.Hash != "000000000000beef" {
		t.Errorf("hash = %q, want 000000000000beef", r.Hash)
	}
	if r.Placeholders != 2 {
		t.Errorf("placeholders = %d, want 2", r.Placeholders)
	}
	if len(r.Units) != 2 || r.Units[0].Placeholders != 0 || r.Units[1].Placeholders != 2 {
		t.Errorf("units = %+v", r.Units)
	}
	if r.SelfCheck == nil || !r.SelfCheck.Stable || r.SelfCheck.Passed {
		t.Errorf("self check = %+v", r.SelfCheck)
	}
}

func TestEncodings(t *testing.T) {
	r := New(sampleResult())
	for _, format := range Formats {
		t.Run(format, func(t *testing.T) {
			data, err := Encode(r, format)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := Decode(data, format)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !reflect.DeepEqual(got, r) {
				t.Errorf("decoded report differs:\n%+v\nwant:\n%+v", got, r)
			}
		})
	}
}

func TestTextEncodings(t *testing.T) {
	r := New(sampleResult())
	js, err := Encode(r, "json")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, want := range []string{`"kind": "NoMatch"`, `"qualname": "f"`, `"self_check"`} {
		if !strings.Contains(string(js), want) {
			t.Errorf("json lacks %s:\n%s", want, js)
		}
	}
	y, err := Encode(r, "yaml")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, want := range []string{"qualname: <module>", "kind: UnknownOpcode", "revision: \"3.8\""} {
		if !strings.Contains(string(y), want) {
			t.Errorf("yaml lacks %s:\n%s", want, y)
		}
	}
}

func TestCBORIsCanonical(t *testing.T) {
	a, err := Encode(New(sampleResult()), "cbor")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	b, err := Encode(New(sampleResult()), "cbor")
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("CBOR encoding is not deterministic")
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := Encode(New(sampleResult()), "xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Encode error = %v, want ErrUnknownFormat", err)
	}
	if _, err := Decode(nil, "xml"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("Decode error = %v, want ErrUnknownFormat", err)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := WriteFile(path, New(sampleResult()), "yaml"); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "r.json"), New(sampleResult()), "json"); err == nil {
		t.Error("WriteFile succeeded into a missing directory")
	}
}
