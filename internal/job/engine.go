package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tileerr"
	"github.com/tilecached/tilecached/internal/tilemath"
)

// RefreshPolicy decides whether an already-present tile should be
// regenerated, implementing the refreshBefore predicate (4.H step 2):
// undefined resolves to Always, a string/number to MinTimestamp/MaxAge,
// and boolean true to CompareHash. At most one of Always, MaxAge,
// MinTimestamp, CompareHash is meaningful at a time; the zero value is
// the narrowest policy (seed-if-missing only), used internally by
// callers that want that default rather than the CLI's refreshBefore
// default.
type RefreshPolicy struct {
	// Always, if true, refreshes every tile regardless of its age.
	Always bool
	// MaxAge, if non-zero, refreshes any tile older than this duration.
	MaxAge time.Duration
	// MinTimestamp, if non-zero, refreshes any tile created before this
	// Unix-ms timestamp.
	MinTimestamp int64
	// CompareHash, if true, refreshes when a provided hash function
	// reports the source hash no longer matches the stored one.
	CompareHash bool
	HashFunc    func(ctx context.Context, c tilemath.Coords) (string, error)
}

// needsRefresh applies the policy against a store's existing tile.
func (p RefreshPolicy) needsRefresh(ctx context.Context, s store.Store, c tilemath.Coords) (bool, error) {
	created, err := s.GetCreated(ctx, c.Z, c.X, c.Y)
	if err != nil {
		if errors.Is(err, tileerr.NotFound) {
			return true, nil
		}
		return false, err
	}

	if p.Always {
		return true, nil
	}
	if p.MaxAge > 0 {
		age := time.Since(time.UnixMilli(created))
		if age > p.MaxAge {
			return true, nil
		}
	}
	if p.MinTimestamp > 0 && created < p.MinTimestamp {
		return true, nil
	}
	if p.CompareHash && p.HashFunc != nil {
		info, err := s.TileExtraInfo(ctx, []store.RangeQuery{{Z: c.Z, XMin: c.X, XMax: c.X, YMin: c.Y, YMax: c.Y}}, store.ExtraInfoHash)
		if err != nil {
			return false, err
		}
		existing, ok := info[store.TileKey{Z: c.Z, X: c.X, Y: c.Y}]
		wantHash, err := p.HashFunc(ctx, c)
		if err != nil {
			return false, err
		}
		if !ok || existing.Hash != wantHash {
			return true, nil
		}
	}
	return false, nil
}

// Spec describes one bulk job: the coverage to enumerate, the scheme to
// enumerate it under, concurrency, and the refresh policy to apply
// before invoking the underlying Runner for each tile.
type Spec struct {
	Coverage tilemath.Coverage
	Scheme   tilemath.Scheme
	Workers  int
	Refresh  RefreshPolicy
	Progress bool
}

// Engine runs seed/export/render jobs against one destination store.
type Engine struct {
	dest store.Store

	mu              sync.Mutex
	cancelRequested bool
	pool            *Pool
	progress        *Progress
}

// NewEngine builds an Engine writing to dest.
func NewEngine(dest store.Store) *Engine {
	return &Engine{dest: dest}
}

// Cancel requests cooperative cancellation (spec §3's Job state,
// §4.H/§5's cancellation behavior): the enumeration loop stops queuing
// new tasks and, once a Run is in progress, its pool is cancelled too.
// Safe to call at any point in a job's lifecycle, including before
// Run starts or from a concurrent goroutine (e.g. a CLI Ctrl-C
// handler) while Run blocks.
func (e *Engine) Cancel() {
	e.mu.Lock()
	e.cancelRequested = true
	pool := e.pool
	progress := e.progress
	e.mu.Unlock()
	if pool != nil {
		pool.Cancel()
	}
	if progress != nil {
		progress.SetCancelRequested()
	}
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelRequested
}

// State reports the running job's progress, or a zero-total snapshot
// with CancelRequested set if Cancel was called before any Run started.
func (e *Engine) State() State {
	e.mu.Lock()
	pool := e.pool
	cancelRequested := e.cancelRequested
	e.mu.Unlock()

	if pool == nil {
		return State{CancelRequested: cancelRequested}
	}
	st := pool.State()
	st.CancelRequested = st.CancelRequested || cancelRequested
	return st
}

// Enumerate expands spec.Coverage into the ordered list of tasks a job
// would run, applying the refresh policy up front so progress totals
// reflect actual work. The loop checks Cancel before each lookup, so a
// cancellation requested mid-enumeration stops queuing further work
// rather than running to completion first.
func (e *Engine) Enumerate(ctx context.Context, spec Spec) ([]Task, error) {
	bound := spec.Coverage.Expand(spec.Scheme)

	var tasks []Task
	var enumErr error
	bound.ForEach(func(x, y int32) {
		if enumErr != nil || e.isCancelled() {
			return
		}
		c := tilemath.Coords{Z: bound.Z, X: x, Y: y}
		refresh, err := spec.Refresh.needsRefresh(ctx, e.dest, c)
		if err != nil {
			enumErr = fmt.Errorf("job: enumerate %s: %w", c, err)
			return
		}
		if refresh {
			tasks = append(tasks, Task{Coords: c, Force: true})
		}
	})
	return tasks, enumErr
}

// Run enumerates spec.Coverage and runs runner over every tile needing
// refresh, reporting progress if spec.Progress is set. It returns every
// per-tile result; the caller decides how to summarize failures.
func (e *Engine) Run(ctx context.Context, spec Spec, runner Runner) ([]Result, error) {
	tasks, err := e.Enumerate(ctx, spec)
	if err != nil {
		return nil, err
	}

	var progress *Progress
	var onProgress ProgressFunc
	if spec.Progress {
		progress = NewProgress(len(tasks), true)
		onProgress = progress.Callback()
	}

	pool := New(Config{Workers: spec.Workers, Runner: runner, OnProgress: onProgress})
	e.mu.Lock()
	e.pool = pool
	e.progress = progress
	cancelled := e.cancelRequested
	e.mu.Unlock()
	if cancelled {
		pool.Cancel()
		if progress != nil {
			progress.SetCancelRequested()
		}
	}

	results := pool.Run(ctx, tasks)

	e.mu.Lock()
	e.pool = nil
	e.progress = nil
	e.mu.Unlock()

	if progress != nil {
		progress.Done()
	}
	return results, nil
}

// SeedRunner builds a Runner that downloads each task's tile from an
// origin into dest via store.DownloadTile.
func SeedRunner(dest store.Store, download func(ctx context.Context, c tilemath.Coords) error) Runner {
	return RunnerFunc(func(ctx context.Context, task Task) error {
		return download(ctx, task.Coords)
	})
}

// ExportRunner builds a Runner that copies each task's tile from src
// into dest, skipping tiles src doesn't have.
func ExportRunner(src, dest store.Store) Runner {
	return RunnerFunc(func(ctx context.Context, task Task) error {
		c := task.Coords
		rec, err := src.GetTile(ctx, c.Z, c.X, c.Y)
		if err != nil {
			if errors.Is(err, tileerr.NotFound) {
				return nil
			}
			return err
		}
		return dest.PutTile(ctx, c.Z, c.X, c.Y, rec.Data, rec.ContentType, rec.ContentEncoding, true)
	})
}

// RenderRunner builds a Runner that renders each task's tile with
// render and stores the result in dest.
func RenderRunner(dest store.Store, render func(ctx context.Context, c tilemath.Coords) (data []byte, contentType string, err error)) Runner {
	return RunnerFunc(func(ctx context.Context, task Task) error {
		c := task.Coords
		data, contentType, err := render(ctx, c)
		if err != nil {
			return fmt.Errorf("job: render %s: %w", c, err)
		}
		return dest.PutTile(ctx, c.Z, c.X, c.Y, data, contentType, "", true)
	})
}

// Flusher is implemented by stores that need a post-write pass over a
// completed job's destination (e.g. flushing a batched file archive).
// Engine does not call it; the seed, export and render commands call
// CleanupDest after Run.
type Flusher interface {
	Flush(ctx context.Context) error
}

// CleanupDest flushes dest if it implements Flusher, a no-op otherwise.
func CleanupDest(ctx context.Context, dest store.Store) error {
	if f, ok := dest.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
