// Package decompiler drives an artifact through reading, reduction and
// rendering, one artifact at a time or in batches.
package decompiler

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/pyrecon/ast"
	"github.com/chazu/pyrecon/diag"
	"github.com/chazu/pyrecon/grammar"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
	"github.com/chazu/pyrecon/unparse"
)

var log = commonlog.GetLogger("pyrecon.decompiler")

// Options controls one request.
type Options struct {
	// Revision is a registry tag; "" or "auto" detects it from the magic.
	Revision string
	// Parallel reconstructs sibling nested units concurrently.
	Parallel bool
	// Placeholder and Indent are passed to the unparser.
	Placeholder string
	Indent      int
	// SelfCheck renders the tree a second time and compares.
	SelfCheck bool
	// Cache is shared between requests; nil disables caching.
	Cache *Cache
}

// UnitResult is the outcome for one reconstructed code unit.
type UnitResult struct {
	QualName    string
	FirstLine   int
	Diagnostics []diag.Diagnostic
}

// SelfCheck is the outcome of re-rendering the reconstructed tree.
type SelfCheck struct {
	Stable bool
	Passed bool
}

// Result is the outcome of one request.
type Result struct {
	ID       uuid.UUID
	Path     string
	Revision string
	Hash     uint64

	Module *ast.Module
	Source string
	Units  []UnitResult

	SelfCheck *SelfCheck
}

// Placeholders counts the placeholders across all units.
func (r *Result) Placeholders() int {
	n := 0
	for _, u := range r.Units {
		n += len(u.Diagnostics)
	}
	return n
}

// DecompileFile reads the artifact at path and reconstructs it.
func DecompileFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	res, err := Decompile(ctx, data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Path = path
	return res, nil
}

// Decompile reconstructs the artifact in data. ErrUnsupportedRevision and
// ErrMalformedArtifact are returned wrapped with the revision; every
// other problem becomes a placeholder in the result.
func Decompile(ctx context.Context, data []byte, opts Options) (*Result, error) {
	id := uuid.New()
	revision := opts.Revision
	if revision == "" {
		revision = "auto"
	}
	art, err := pyc.Parse(data, revision)
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", revision, err)
	}
	bundle, err := registry.Lookup(art.Revision)
	if err != nil {
		return nil, fmt.Errorf("revision %s: %w", art.Revision, err)
	}
	log.Infof("%s: decompiling %s (revision %s, %d bytes)", id, art.Code.Filename, art.Revision, len(data))

	p := &pipeline{
		opts:   opts,
		bundle: bundle,
		done:   make(map[*pyc.CodeUnit]*grammar.Result),
	}
	root, err := p.reduce(ctx, art.Code)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:       id,
		Revision: art.Revision,
		Hash:     xxh3.Hash(data),
		Module:   &ast.Module{Body: root.Body, Py2: bundle.Revision.Major == 2},
	}
	art.Code.Walk(func(u *pyc.CodeUnit) {
		if r := p.result(u); r != nil {
			res.Units = append(res.Units, UnitResult{
				QualName:    u.DisplayName(),
				FirstLine:   u.FirstLine,
				Diagnostics: r.Diagnostics,
			})
		}
	})

	uopts := unparse.Options{Indent: opts.Indent, Placeholder: opts.Placeholder}
	var gaps []diag.Diagnostic
	res.Source, gaps = unparse.Render(res.Module, uopts)
	if len(gaps) > 0 && len(res.Units) > 0 {
		// The printer has no unit context; its placeholders count against
		// the module.
		root := &res.Units[0]
		root.Diagnostics = append(append([]diag.Diagnostic{}, root.Diagnostics...), gaps...)
	}
	if opts.SelfCheck {
		stable := unparse.Unparse(res.Module, uopts) == res.Source
		res.SelfCheck = &SelfCheck{Stable: stable, Passed: stable && res.Placeholders() == 0}
	}

	if n := res.Placeholders(); n > 0 {
		log.Warningf("%s: %d placeholders", id, n)
	}
	hits, misses := opts.Cache.Stats()
	log.Debugf("%s: done, %d units, cache %d/%d", id, len(res.Units), hits, hits+misses)
	return res, nil
}

// pipeline holds the per-request state shared by nested reductions.
type pipeline struct {
	opts   Options
	bundle *registry.Bundle

	mu   sync.Mutex
	done map[*pyc.CodeUnit]*grammar.Result
}

func (p *pipeline) result(u *pyc.CodeUnit) *grammar.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done[u]
}

func (p *pipeline) store(u *pyc.CodeUnit, r *grammar.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[u] = r
}

// reduce reconstructs u, reusing results from this request or the cache.
// It is the grammar's Nested callback.
func (p *pipeline) reduce(ctx context.Context, u *pyc.CodeUnit) (*grammar.Result, error) {
	if r := p.result(u); r != nil {
		return r, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, keyed := uint64(0), false
	if p.opts.Cache != nil {
		key, keyed = unitHash(u, p.bundle.Tag())
	}
	if keyed {
		if e, ok := p.opts.Cache.get(key); ok && p.restore(u, e) {
			log.Debugf("cache hit for %s", u.DisplayName())
			return p.result(u), nil
		}
	}

	if p.opts.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for _, child := range u.Children() {
			g.Go(func() error {
				_, err := p.reduce(gctx, child)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	r, err := grammar.Decompile(ctx, u, p.bundle, p.reduce)
	if err != nil {
		return nil, err
	}
	p.store(u, r)
	if keyed {
		p.opts.Cache.add(key, p.snapshot(u))
	}
	return r, nil
}

// snapshot collects the results for u's subtree in Walk order.
func (p *pipeline) snapshot(u *pyc.CodeUnit) entry {
	var e entry
	u.Walk(func(c *pyc.CodeUnit) {
		e = append(e, p.result(c))
	})
	return e
}

// restore installs a cached subtree. It refuses entries whose shape does
// not line up with u.
func (p *pipeline) restore(u *pyc.CodeUnit, e entry) bool {
	var units []*pyc.CodeUnit
	u.Walk(func(c *pyc.CodeUnit) { units = append(units, c) })
	if len(units) != len(e) || e[0] == nil {
		return false
	}
	for i, c := range units {
		if e[i] != nil {
			p.store(c, e[i])
		}
	}
	return true
}
