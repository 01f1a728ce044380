package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[decompile]
revision = "3.8"
parallel = true
placeholder = "gap"
indent = 2

[batch]
workers = 3
out_dir = "out"

[cache]
size = 16

[ledger]
path = "/tmp/results.db"

[report]
format = "cbor"

[log]
verbosity = 2
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Decompile.Revision != "3.8" {
		t.Errorf("revision = %q, want 3.8", c.Decompile.Revision)
	}
	if !c.Decompile.Parallel {
		t.Error("parallel = false, want true")
	}
	if c.Decompile.Placeholder != "gap" || c.Decompile.Indent != 2 {
		t.Errorf("decompile = %+v", c.Decompile)
	}
	if c.Batch.Workers != 3 {
		t.Errorf("workers = %d, want 3", c.Batch.Workers)
	}
	if want := filepath.Join(dir, "out"); c.Batch.OutDir != want {
		t.Errorf("out_dir = %q, want %q", c.Batch.OutDir, want)
	}
	if c.Cache.Size != 16 {
		t.Errorf("cache size = %d, want 16", c.Cache.Size)
	}
	if c.Ledger.Path != "/tmp/results.db" {
		t.Errorf("ledger path = %q", c.Ledger.Path)
	}
	if c.Report.Format != "cbor" {
		t.Errorf("report format = %q, want cbor", c.Report.Format)
	}
	if c.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", c.Log.Verbosity)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[decompile]
parallel = true
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Decompile.Revision != "auto" {
		t.Errorf("revision = %q, want auto", c.Decompile.Revision)
	}
	if c.Decompile.Indent != 4 {
		t.Errorf("indent = %d, want 4", c.Decompile.Indent)
	}
	if c.Batch.Workers != runtime.NumCPU() {
		t.Errorf("workers = %d, want %d", c.Batch.Workers, runtime.NumCPU())
	}
	if c.Cache.Size != 256 {
		t.Errorf("cache size = %d, want 256", c.Cache.Size)
	}
	if c.Report.Format != "json" {
		t.Errorf("report format = %q, want json", c.Report.Format)
	}
	if c.Ledger.Path != "" {
		t.Errorf("ledger path = %q, want empty", c.Ledger.Path)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"format":      "[report]\nformat = \"xml\"\n",
		"indent":      "[decompile]\nindent = 0\n",
		"unknown key": "[decompile]\nrevisions = \"3.8\"\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, content)
			_, err := Load(dir)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadConfigSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "[decompile\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load succeeded on malformed TOML")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[cache]\nsize = 8\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(nested)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c.Cache.Size != 8 {
		t.Errorf("cache size = %d, want 8", c.Cache.Size)
	}
	if c.Path != filepath.Join(root, FileName) {
		t.Errorf("path = %q", c.Path)
	}
}

func TestFindAndLoadMissing(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	// A pyrecon.toml above the temp dir would be picked up too.
	if c.Path == "" && c.Cache.Size != 256 {
		t.Errorf("defaults not applied: %+v", c)
	}
}
