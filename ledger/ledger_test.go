package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/pyrecon/decompiler"
	"github.com/chazu/pyrecon/diag"
)

func openLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func result(placeholders int) *decompiler.Result {
	var diags []diag.Diagnostic
	for i := 0; i < placeholders; i++ {
		diags = append(diags, diag.New(diag.NoMatch, nil, i, i+2, "POP_TOP"))
	}
	return &decompiler.Result{
		ID:       uuid.New(),
		Revision: "3.8",
		Hash:     0x1234,
		Units:    []decompiler.UnitResult{{QualName: "<module>", Diagnostics: diags}},
	}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	l, _ := openLedger(t)

	outcomes := []*decompiler.Outcome{
		{Path: "a.pyc", Output: "a.py", Result: result(0)},
		{Path: "b.pyc", Output: "b.py", Result: result(2)},
		{Path: "c.pyc", Err: fmt.Errorf("c.pyc: %w", errors.New("malformed artifact"))},
	}
	for _, o := range outcomes {
		if err := l.Record(ctx, o); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	a, err := l.Latest(ctx, "a.pyc")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if a.Status != Clean || a.Output != "a.py" || a.Revision != "3.8" || a.Hash != "0000000000001234" {
		t.Errorf("a = %+v", a)
	}
	if a.ID != outcomes[0].Result.ID.String() {
		t.Errorf("a id = %q, want request id %s", a.ID, outcomes[0].Result.ID)
	}

	b, err := l.Latest(ctx, "b.pyc")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if b.Status != Partial || b.Placeholders != 2 {
		t.Errorf("b = %+v", b)
	}

	c, err := l.Latest(ctx, "c.pyc")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if c.Status != Failed || c.Error != "c.pyc: malformed artifact" {
		t.Errorf("c = %+v", c)
	}

	sum, err := l.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if sum[Clean] != 1 || sum[Partial] != 1 || sum[Failed] != 1 {
		t.Errorf("summary = %v", sum)
	}
}

func TestLatestMissing(t *testing.T) {
	l, _ := openLedger(t)
	if _, err := l.Latest(context.Background(), "nope.pyc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	l, path := openLedger(t)

	older := Entry{ID: "1", Path: "m.pyc", Status: Partial, Placeholders: 3, RecordedAt: time.Unix(100, 0)}
	newer := Entry{ID: "2", Path: "m.pyc", Status: Clean, RecordedAt: time.Unix(200, 0)}
	for _, e := range []Entry{newer, older} {
		if err := l.Put(ctx, e); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopening failed: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "1" || entries[1].ID != "2" {
		t.Fatalf("entries = %+v", entries)
	}
	if !entries[0].RecordedAt.Equal(older.RecordedAt) {
		t.Errorf("recorded at = %v, want %v", entries[0].RecordedAt, older.RecordedAt)
	}

	latest, err := reopened.Latest(ctx, "m.pyc")
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != "2" || latest.Status != Clean {
		t.Errorf("latest = %+v", latest)
	}
}
