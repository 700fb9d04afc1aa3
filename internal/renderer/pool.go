package renderer

import (
	"context"
	"fmt"
	"sync"

	"github.com/tilecached/tilecached/internal/tileerr"
)

// Factory builds a fresh native rasterizer instance.
type Factory func() (*MapnikRasterizer, error)

// Pool manages a bounded set of MapnikRasterizer instances behind a
// counting semaphore: Acquire blocks until an instance is idle or a new
// one can be created under max, Release returns a healthy instance to
// the idle set, and Destroy discards one whose Mapnik state is suspect
// after a failed render, freeing its slot for a fresh instance.
type Pool struct {
	factory Factory
	max     int
	tokens  chan struct{}

	mu      sync.Mutex
	idle    []*MapnikRasterizer
	created int
	closed  bool
}

// NewPool builds a Pool that lazily creates up to max rasterizers,
// eagerly creating min of them up front.
func NewPool(min, max int, factory Factory) (*Pool, error) {
	if max < 1 {
		max = 1
	}
	if min > max {
		min = max
	}

	p := &Pool{factory: factory, max: max, tokens: make(chan struct{}, max)}
	for i := 0; i < max; i++ {
		p.tokens <- struct{}{}
	}

	for i := 0; i < min; i++ {
		r, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("renderer: prime pool: %w", err)
		}
		p.idle = append(p.idle, r)
		p.created++
	}
	return p, nil
}

// Acquire reserves a slot and returns an idle rasterizer, creating one
// if needed, or blocks until a slot frees or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*MapnikRasterizer, error) {
	select {
	case <-p.tokens:
	case <-ctx.Done():
		return nil, fmt.Errorf("renderer: %w", tileerr.OperationTimeout)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.tokens <- struct{}{}
		return nil, fmt.Errorf("renderer: pool closed")
	}
	if n := len(p.idle); n > 0 {
		r := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return r, nil
	}
	p.created++
	p.mu.Unlock()

	r, err := p.factory()
	if err != nil {
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		p.tokens <- struct{}{}
		return nil, fmt.Errorf("renderer: create rasterizer: %w", err)
	}
	return r, nil
}

// Release returns a healthy rasterizer to the idle set and frees its
// slot for the next Acquire.
func (p *Pool) Release(r *MapnikRasterizer) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		r.Close()
		return
	}
	p.idle = append(p.idle, r)
	p.mu.Unlock()
	p.tokens <- struct{}{}
}

// Destroy discards a rasterizer whose state is suspect after a failed
// render, freeing its slot for a fresh instance on the next Acquire.
func (p *Pool) Destroy(r *MapnikRasterizer) {
	r.Close()
	p.mu.Lock()
	p.created--
	p.mu.Unlock()
	p.tokens <- struct{}{}
}

// Close frees every idle rasterizer. In-flight acquisitions are not
// forcibly reclaimed; callers should stop issuing work before Close.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, r := range p.idle {
		r.Close()
	}
	p.idle = nil
}
