package decompiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Recorder persists batch outcomes. Record is called from worker
// goroutines and must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, o *Outcome) error
}

// BatchOptions controls Batch.
type BatchOptions struct {
	Options
	// Workers bounds the artifacts processed at once; zero means NumCPU.
	Workers int
	// OutDir receives the rendered sources. Empty writes <path>.py next to
	// each artifact.
	OutDir string
	// Recorder, when set, receives every outcome.
	Recorder Recorder
}

// Outcome is the result of one artifact in a batch. Exactly one of
// Result and Err is set.
type Outcome struct {
	Path   string
	Output string
	Result *Result
	Err    error
}

// OutputPath returns where the source for artifact path is written.
func OutputPath(path, outDir string) string {
	name := path
	if ext := filepath.Ext(path); ext == ".pyc" || ext == ".pyo" {
		name = strings.TrimSuffix(path, ext)
	}
	name += ".py"
	if outDir == "" {
		return name
	}
	return filepath.Join(outDir, filepath.Base(name))
}

// Batch decompiles every artifact in paths. Failures of single artifacts
// are reported in their Outcome; the returned error is cancellation or a
// Recorder failure. Outcomes keep the order of paths.
func Batch(ctx context.Context, paths []string, opts BatchOptions) ([]Outcome, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if opts.OutDir != "" {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", opts.OutDir, err)
		}
	}
	log.Infof("batch of %d artifacts, %d workers", len(paths), workers)

	outcomes := make([]Outcome, len(paths))
	var seen sync.Map
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := &outcomes[i]
			o.Path = path
			o.Result, o.Err = DecompileFile(gctx, path, opts.Options)
			if o.Err == nil {
				o.Output = OutputPath(path, opts.OutDir)
				if prev, dup := seen.LoadOrStore(o.Output, path); dup {
					o.Err = fmt.Errorf("%s: output %s already written for %s", path, o.Output, prev)
					o.Result, o.Output = nil, ""
				} else if err := os.WriteFile(o.Output, []byte(o.Result.Source), 0644); err != nil {
					o.Err = fmt.Errorf("writing %s: %w", o.Output, err)
					o.Result, o.Output = nil, ""
				}
			}
			if o.Err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Errorf("%v", o.Err)
			}
			if opts.Recorder != nil {
				if err := opts.Recorder.Record(gctx, o); err != nil {
					return fmt.Errorf("recording %s: %w", path, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
