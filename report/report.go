// Package report describes what a request reconstructed and where it left
// placeholders, encoded as JSON, YAML or canonical CBOR.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"github.com/chazu/pyrecon/decompiler"
	"github.com/chazu/pyrecon/diag"
)

var (
	ErrUnknownFormat = errors.New("unknown report format")
)

// Formats lists the supported encodings.
var Formats = []string{"json", "yaml", "cbor"}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Report is the summary of one request.
type Report struct {
	ID           string     `json:"id" yaml:"id" cbor:"1,keyasint"`
	Path         string     `json:"path,omitempty" yaml:"path,omitempty" cbor:"2,keyasint,omitempty"`
	Revision     string     `json:"revision" yaml:"revision" cbor:"3,keyasint"`
	Hash         string     `json:"hash" yaml:"hash" cbor:"4,keyasint"`
	Placeholders int        `json:"placeholders" yaml:"placeholders" cbor:"5,keyasint"`
	Units        []Unit     `json:"units" yaml:"units" cbor:"6,keyasint"`
	SelfCheck    *SelfCheck `json:"self_check,omitempty" yaml:"self_check,omitempty" cbor:"7,keyasint,omitempty"`
}

// Unit is the part of a report for one code unit.
type Unit struct {
	QualName     string            `json:"qualname" yaml:"qualname" cbor:"1,keyasint"`
	FirstLine    int               `json:"first_line" yaml:"first_line" cbor:"2,keyasint"`
	Placeholders int               `json:"placeholders" yaml:"placeholders" cbor:"3,keyasint"`
	Diagnostics  []diag.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty" cbor:"4,keyasint,omitempty"`
}

// SelfCheck mirrors decompiler.SelfCheck.
type SelfCheck struct {
	Stable bool `json:"stable" yaml:"stable" cbor:"1,keyasint"`
	Passed bool `json:"passed" yaml:"passed" cbor:"2,keyasint"`
}

// New builds the report for a result.
func New(res *decompiler.Result) *Report {
	r := &Report{
		ID:           res.ID.String(),
		Path:         res.Path,
		Revision:     res.Revision,
		Hash:         FormatHash(res.Hash),
		Placeholders: res.Placeholders(),
		Units:        make([]Unit, 0, len(res.Units)),
	}
	for _, u := range res.Units {
		r.Units = append(r.Units, Unit{
			QualName:     u.QualName,
			FirstLine:    u.FirstLine,
			Placeholders: len(u.Diagnostics),
			Diagnostics:  u.Diagnostics,
		})
	}
	if sc := res.SelfCheck; sc != nil {
		r.SelfCheck = &SelfCheck{Stable: sc.Stable, Passed: sc.Passed}
	}
	return r
}

// FormatHash renders an xxh3 hash the way reports and the ledger store it.
func FormatHash(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// Encode serializes r in format.
func Encode(r *Report, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml":
		return yaml.Marshal(r)
	case "cbor":
		return cborEncMode.Marshal(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Decode parses a report encoded in format.
func Decode(data []byte, format string) (*Report, error) {
	var r Report
	var err error
	switch format {
	case "json":
		err = json.Unmarshal(data, &r)
	case "yaml":
		err = yaml.Unmarshal(data, &r)
	case "cbor":
		err = cbor.Unmarshal(data, &r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("report: unmarshal %s: %w", format, err)
	}
	return &r, nil
}

// WriteFile encodes r and writes it to path.
func WriteFile(path string, r *Report, format string) error {
	data, err := Encode(r, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report %s: %w", path, err)
	}
	return nil
}
