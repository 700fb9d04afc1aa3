// Package job implements the bulk job engine: seed, export, and render
// jobs over a tile coverage, run through a bounded worker pool with
// progress reporting and cooperative cancellation. Adapted from the
// teacher's internal/worker package (pool.go/progress.go), generalized
// from "generate one tile file" to "run one job.Task through whatever
// the job kind requires".
package job

import (
	"context"
	"sync"
	"time"

	"github.com/tilecached/tilecached/internal/tilemath"
)

// Task is one unit of work: a single tile coordinate plus whether the
// job is allowed to overwrite an existing, still-fresh tile.
type Task struct {
	Coords tilemath.Coords
	Force  bool
}

// Runner executes one Task. Implementations are provided by the seed,
// export, and render job constructors.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, task Task) error

func (f RunnerFunc) Run(ctx context.Context, task Task) error { return f(ctx, task) }

// Result is the outcome of one Task.
type Result struct {
	Task    Task
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed, active int)

// Config configures a Pool.
type Config struct {
	Workers    int
	Runner     Runner
	OnProgress ProgressFunc
}

// State is a point-in-time snapshot of a running (or just-finished) job,
// the {total, completed, active, cancelRequested} shape from spec §3's
// Job state model.
type State struct {
	Total           int
	Completed       int
	Active          int
	CancelRequested bool
}

// Pool runs a bounded number of workers over a slice of Tasks,
// cooperatively cancellable via ctx or an explicit Cancel call.
type Pool struct {
	workers    int
	runner     Runner
	onProgress ProgressFunc

	mu              sync.Mutex
	total           int
	completed       int
	failed          int
	active          int
	cancelRequested bool
	cancel          context.CancelFunc
}

// New builds a Pool; Workers <= 0 is treated as 1.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers, runner: cfg.Runner, onProgress: cfg.OnProgress}
}

// Cancel requests cooperative cancellation of the in-progress Run: the
// task-dispatch loop stops handing out new work and in-flight workers
// see ctx.Done(). Safe to call before Run starts (Run then begins
// already cancelled) or after it returns.
func (p *Pool) Cancel() {
	p.mu.Lock()
	p.cancelRequested = true
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State reports the pool's current progress.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{Total: p.total, Completed: p.completed, Active: p.active, CancelRequested: p.cancelRequested}
}

// Run executes every task, blocking until all complete, ctx is done, or
// Cancel is called.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.total = len(tasks)
	p.completed = 0
	p.failed = 0
	p.active = 0
	p.cancel = cancel
	cancelled := p.cancelRequested
	p.mu.Unlock()
	if cancelled {
		cancel()
	}
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(runCtx, taskCh, resultCh)
		}()
	}

	go func() {
		defer close(taskCh)
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-runCtx.Done():
				return
			}
		}
	}()

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for result := range resultCh {
			results = append(results, result)

			p.mu.Lock()
			p.completed++
			if result.Err != nil {
				p.failed++
			}
			c, f, a := p.completed, p.failed, p.active
			p.mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f, a)
			}
		}
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			results <- Result{Task: task, Err: ctx.Err()}
			continue
		default:
		}

		p.mu.Lock()
		p.active++
		p.mu.Unlock()

		start := time.Now()
		err := p.runner.Run(ctx, task)
		results <- Result{Task: task, Err: err, Elapsed: time.Since(start)}

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}
