// Package config handles pyrecon.toml configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "pyrecon.toml"

var (
	ErrInvalid = errors.New("invalid configuration")
)

// Config represents a pyrecon.toml file.
type Config struct {
	Decompile Decompile `toml:"decompile"`
	Batch     Batch     `toml:"batch"`
	Cache     Cache     `toml:"cache"`
	Ledger    Ledger    `toml:"ledger"`
	Report    Report    `toml:"report"`
	Log       Log       `toml:"log"`

	// Path is the file the configuration was read from; empty for defaults.
	Path string `toml:"-"`
}

// Decompile configures single-artifact reconstruction.
type Decompile struct {
	Revision    string `toml:"revision"`
	Parallel    bool   `toml:"parallel"`
	Placeholder string `toml:"placeholder"`
	Indent      int    `toml:"indent"`
}

// Batch configures the batch driver.
type Batch struct {
	Workers int    `toml:"workers"`
	OutDir  string `toml:"out_dir"`
}

// Cache sizes the reconstructed-unit cache. Zero disables it.
type Cache struct {
	Size int `toml:"size"`
}

// Ledger locates the result database. An empty path disables it.
type Ledger struct {
	Path string `toml:"path"`
}

// Report selects the report encoding.
type Report struct {
	Format string `toml:"format"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Decompile: Decompile{Revision: "auto", Placeholder: "__pyrecon_gap__", Indent: 4},
		Batch:     Batch{Workers: runtime.NumCPU()},
		Cache:     Cache{Size: 256},
		Report:    Report{Format: "json"},
	}
}

// Load parses the pyrecon.toml in dir. Keys the file leaves out keep
// their defaults.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: %s: unknown key %q", ErrInvalid, path, undecoded[0].String())
	}
	c.Path = path

	// Relative paths are taken from the file's directory.
	base := filepath.Dir(path)
	for _, p := range []*string{&c.Batch.OutDir, &c.Ledger.Path, &c.Log.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a pyrecon.toml file, then
// loads it. Without one it returns Default().
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks values the decoder cannot.
func (c *Config) Validate() error {
	switch c.Report.Format {
	case "json", "yaml", "cbor":
	default:
		return fmt.Errorf("%w: report.format %q", ErrInvalid, c.Report.Format)
	}
	if c.Decompile.Indent < 1 {
		return fmt.Errorf("%w: decompile.indent %d", ErrInvalid, c.Decompile.Indent)
	}
	if c.Batch.Workers < 0 {
		return fmt.Errorf("%w: batch.workers %d", ErrInvalid, c.Batch.Workers)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("%w: cache.size %d", ErrInvalid, c.Cache.Size)
	}
	return nil
}
