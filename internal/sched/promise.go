package sched

import "sync"

// Promise is a single-assignment result slot. Completion is observed through
// callbacks only; there is deliberately no Wait, so the world-owning
// goroutine cannot be made to block on a worker.
type Promise[T any] struct {
	mu   sync.Mutex
	done bool
	val  T
	err  error
	subs []func(T, error)
}

func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{}
}

// Complete resolves the promise. Later completions are ignored.
func (p *Promise[T]) Complete(v T) { p.settle(v, nil) }

// Fail resolves the promise with an error. Later completions are ignored.
func (p *Promise[T]) Fail(err error) {
	var zero T
	p.settle(zero, err)
}

// Done reports whether the promise has been resolved either way.
func (p *Promise[T]) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// OnDone registers a completion callback. If the promise is already
// resolved, fn runs immediately on the calling goroutine; otherwise it runs
// on the goroutine that resolves the promise.
func (p *Promise[T]) OnDone(fn func(T, error)) {
	p.mu.Lock()
	if p.done {
		v, err := p.val, p.err
		p.mu.Unlock()
		fn(v, err)
		return
	}
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

func (p *Promise[T]) settle(v T, err error) {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	p.val = v
	p.err = err
	subs := p.subs
	p.subs = nil
	p.mu.Unlock()

	for _, fn := range subs {
		fn(v, err)
	}
}
