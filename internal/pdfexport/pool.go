package pdfexport

import (
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	MinPoolSize = 1

	// MaxPoolSize caps browser instances to limit memory (~200MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for Chrome child processes.
	cpuDivisor = 2
)

// Pool hands out Exporters for parallel exports. Each Exporter owns its own
// browser; they are created on first Acquire.
type Pool struct {
	size    int
	factory func() Exporter
	all     []Exporter
	idle    chan Exporter
	mu      sync.Mutex
	created int
	closed  bool
}

// NewPool creates a pool of up to n Exporters built by factory.
func NewPool(n int, factory func() Exporter) *Pool {
	if n < MinPoolSize {
		n = MinPoolSize
	}
	return &Pool{
		size:    n,
		factory: factory,
		all:     make([]Exporter, 0, n),
		idle:    make(chan Exporter, n),
	}
}

// Acquire returns an idle Exporter, creating one while under capacity, and
// blocks otherwise. It returns ErrClosed once the pool is closed.
func (p *Pool) Acquire() (Exporter, error) {
	select {
	case e, ok := <-p.idle:
		if !ok {
			return nil, ErrClosed
		}
		return e, nil
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if p.created < p.size {
		p.created++
		e := p.factory()
		p.all = append(p.all, e)
		p.mu.Unlock()
		return e, nil
	}
	p.mu.Unlock()

	e, ok := <-p.idle
	if !ok {
		return nil, ErrClosed
	}
	return e, nil
}

// Release returns e to the pool.
func (p *Pool) Release(e Exporter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.idle <- e
}

// Close closes every Exporter the pool created.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.idle)
	all := p.all
	p.mu.Unlock()

	var errs []error
	for _, e := range all {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// ResolvePoolSize returns workers when positive, otherwise half of
// GOMAXPROCS clamped to [MinPoolSize, MaxPoolSize].
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}
	n := runtime.GOMAXPROCS(0) / cpuDivisor
	return max(MinPoolSize, min(n, MaxPoolSize))
}
