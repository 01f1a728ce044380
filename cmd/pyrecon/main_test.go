package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/ledger"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
)

func writeArtifact(t *testing.T, dir, name, tag string, broken bool) string {
	t.Helper()
	a := disasm.NewAssembler(registry.MustLookup(tag))
	if broken {
		a.Op("POP_TOP", "POP_TOP")
	}
	a.Emit("LOAD_CONST", a.Const(int64(1)))
	a.Emit("STORE_NAME", a.Name("x"))
	a.Emit("LOAD_CONST", a.Const(pyc.None))
	a.Op("RETURN_VALUE")
	u, err := a.Unit("<module>")
	if err != nil {
		t.Fatalf("assembling failed: %v", err)
	}
	data, err := pyc.Build(u, tag)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-config-dir", dir}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRevisions(t *testing.T) {
	code, out, _ := runCLI(t, t.TempDir(), "revisions")
	if code != exitOK {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, tag := range []string{"2.7", "3.8", "3.12"} {
		if !strings.Contains(out, tag+" ") {
			t.Errorf("revisions output lacks %s:\n%s", tag, out)
		}
	}
}

func TestDecompileClean(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "clean.pyc", "3.8", false)

	code, out, stderr := runCLI(t, dir, "decompile", path)
	if code != exitOK {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	if out != "x = 1\n" {
		t.Errorf("stdout = %q, want %q", out, "x = 1\n")
	}
}

func TestDecompileFlagsAfterPath(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "partial.pyc", "3.8", true)
	out := filepath.Join(dir, "partial.py")
	rep := filepath.Join(dir, "partial.yaml")

	code, stdout, stderr := runCLI(t, dir, "decompile", path, "--revision", "3.8",
		"--out", out, "--report", rep, "--report-format", "yaml", "--self-check")
	if code != exitPartial {
		t.Fatalf("exit = %d, want %d; stderr: %s", code, exitPartial, stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	src, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading source failed: %v", err)
	}
	if !strings.Contains(string(src), "__pyrecon_gap__(") {
		t.Errorf("source lacks placeholder:\n%s", src)
	}
	data, err := os.ReadFile(rep)
	if err != nil {
		t.Fatalf("reading report failed: %v", err)
	}
	for _, want := range []string{"kind: NoMatch", "placeholders: 1", "passed: false"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report lacks %q:\n%s", want, data)
		}
	}
}

func TestDecompileExitCodes(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.pyc")
	if err := os.WriteFile(junk, []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	clean := writeArtifact(t, dir, "clean.pyc", "3.8", false)

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"malformed", []string{"decompile", junk}, exitFatal},
		{"unsupported revision", []string{"decompile", clean, "--revision", "4.0"}, exitFatal},
		{"missing file", []string{"decompile", filepath.Join(dir, "missing.pyc")}, exitError},
		{"no path", []string{"decompile"}, exitError},
		{"bad flag", []string{"decompile", "--bogus", clean}, exitError},
		{"unknown command", []string{"frobnicate"}, exitError},
		{"no command", nil, exitError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, dir, tc.args...)
			if code != tc.want {
				t.Errorf("exit = %d, want %d; stderr: %s", code, tc.want, stderr)
			}
		})
	}
}

func TestDisasm(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "clean.pyc", "3.8", false)

	code, out, stderr := runCLI(t, dir, "disasm", path)
	if code != exitOK {
		t.Fatalf("exit = %d, want 0; stderr: %s", code, stderr)
	}
	for _, want := range []string{"<module>", "STORE_NAME", "RETURN_VALUE"} {
		if !strings.Contains(out, want) {
			t.Errorf("listing lacks %s:\n%s", want, out)
		}
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	clean := writeArtifact(t, dir, "clean.pyc", "3.8", false)
	partial := writeArtifact(t, dir, "partial.pyc", "3.12", true)
	db := filepath.Join(dir, "results.db")
	outDir := filepath.Join(dir, "src")

	code, out, stderr := runCLI(t, dir, "batch", "--workers", "2", "--ledger", db, "--out-dir", outDir, clean, partial)
	if code != exitPartial {
		t.Fatalf("exit = %d, want %d; stderr: %s", code, exitPartial, stderr)
	}
	if !strings.Contains(out, "OK   "+clean) || !strings.Contains(out, "PART "+partial) {
		t.Errorf("stdout:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "clean.py")); err != nil {
		t.Errorf("clean.py not written: %v", err)
	}

	junk := filepath.Join(dir, "junk.pyc")
	if err := os.WriteFile(junk, []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	code, _, _ = runCLI(t, dir, "batch", "--ledger", db, "--out-dir", outDir, clean, junk)
	if code != exitFatal {
		t.Errorf("exit with a malformed artifact = %d, want %d", code, exitFatal)
	}

	l, err := ledger.Open(db)
	if err != nil {
		t.Fatalf("opening ledger failed: %v", err)
	}
	defer l.Close()
	entries, err := l.Entries(context.Background())
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("ledger entries = %d, want 4", len(entries))
	}
	last, err := l.Latest(context.Background(), junk)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if last.Status != ledger.Failed {
		t.Errorf("junk status = %s, want failed", last.Status)
	}
}

func TestWorse(t *testing.T) {
	if got := worse(exitPartial, exitError); got != exitError {
		t.Errorf("worse(2, 1) = %d, want 1", got)
	}
	if got := worse(exitFatal, exitPartial); got != exitFatal {
		t.Errorf("worse(3, 2) = %d, want 3", got)
	}
	if got := worse(exitOK, exitPartial); got != exitPartial {
		t.Errorf("worse(0, 2) = %d, want 2", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "clean.pyc", "3.8", false)
	if err := os.WriteFile(filepath.Join(dir, "pyrecon.toml"), []byte("[decompile]\nrevision = \"2.7\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// The configured revision does not match the artifact's magic.
	if code, _, _ := runCLI(t, dir, "decompile", path); code != exitFatal {
		t.Errorf("exit = %d, want %d", code, exitFatal)
	}
	if code, _, _ := runCLI(t, dir, "decompile", path, "--revision", "auto"); code != exitOK {
		t.Errorf("exit with --revision auto = %d, want 0", code)
	}
}
