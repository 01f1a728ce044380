package pyc

import (
	"reflect"
	"testing"

	"github.com/chazu/pyrecon/registry"
)

func TestLineTableRoundTrip(t *testing.T) {
	tests := []struct {
		tag     string
		entries []LineEntry
	}{
		{"2.7", []LineEntry{{0, 6, 1}, {6, 10, 3}, {10, 300, 4}}},
		{"3.6", []LineEntry{{0, 6, 1}, {6, 10, 3}, {10, 14, 2}}},
		{"3.9", []LineEntry{{0, 4, 1}, {4, 600, 400}, {600, 610, 2}}},
		{"3.10", []LineEntry{{0, 6, 1}, {6, 10, 3}, {10, 14, 2}}},
		{"3.10", []LineEntry{{0, 6, 1}, {6, 8, -1}, {8, 600, 200}}},
		{"3.11", []LineEntry{{0, 6, 1}, {6, 10, 3}, {10, 14, 2}}},
		{"3.12", []LineEntry{{0, 2, -1}, {2, 40, 5}, {40, 44, 1}}},
	}
	for _, tt := range tests {
		rev := registry.MustLookup(tt.tag).Revision
		codeLen := tt.entries[len(tt.entries)-1].End
		table := EncodeLines(tt.entries, 1, rev)
		got, err := DecodeLines(table, 1, codeLen, rev)
		if err != nil {
			t.Errorf("%s: decode failed: %v", tt.tag, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.entries) {
			t.Errorf("%s: got %v, want %v (table %v)", tt.tag, got, tt.entries, table)
		}
	}
}

func TestLnotabSignedness(t *testing.T) {
	table := []byte{2, 0xff}
	if got := decodeLnotab(table, 10, 4, true); got[len(got)-1].Line != 9 {
		t.Errorf("signed lnotab: %v", got)
	}
	if got := decodeLnotab(table, 10, 4, false); got[len(got)-1].Line != 265 {
		t.Errorf("unsigned lnotab: %v", got)
	}
}

func TestLocationTableForms(t *testing.T) {
	table := []byte{
		0x80 | 14<<3 | 0, 4, 0, 5, 9, // long form: line +2, columns ignored
		0x80 | 11<<3 | 1, 3, 7, // one-line form: line +1
		0x80 | 15<<3 | 0,    // no location
		0x80 | 3<<3 | 0, 12, // short form: same line
	}
	got, err := decodeLocations(table, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []LineEntry{{0, 2, 12}, {2, 6, 13}, {6, 8, -1}, {8, 10, 13}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := decodeLocations([]byte{0x10}, 1); err == nil {
		t.Error("expected an error for an entry without the start bit")
	}
}

func TestExceptionTable(t *testing.T) {
	raw := []byte{0x82, 0x08, 0x14, 0x03}
	got, err := DecodeExceptionTable(raw)
	if err != nil {
		t.Fatal(err)
	}
	want := []ExceptionEntry{{Start: 4, End: 20, Target: 40, Depth: 1, Lasti: true}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	entries := []ExceptionEntry{
		{Start: 4, End: 20, Target: 40, Depth: 1, Lasti: true},
		{Start: 200, End: 260, Target: 9000, Depth: 3},
	}
	back, err := DecodeExceptionTable(EncodeExceptionTable(entries))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, entries) {
		t.Errorf("round trip: got %v, want %v", back, entries)
	}
	if _, err := DecodeExceptionTable([]byte{0x82, 0x48}); err == nil {
		t.Error("expected an error for a truncated table")
	}
}
