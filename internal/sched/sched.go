// Package sched provides the two-sided scheduling model the engine runs on:
// a single goroutine that owns live world state, plus workers for everything
// else. Cross-side handoffs are scheduled callbacks; nothing in this package
// offers a blocking wait across the boundary.
package sched

import (
	"context"
	"log"
)

// Scheduler moves work between the world-owning goroutine and workers.
type Scheduler interface {
	// RunWorld schedules fn onto the world-owning goroutine. It never blocks
	// the caller and never runs fn inline.
	RunWorld(fn func())
	// RunWorker runs fn on a worker goroutine. Panics are recovered and
	// logged; they never take down the process.
	RunWorker(fn func())
}

// Loop is the world-owning executor. Everything submitted via RunWorld runs
// on the single goroutine inside Run, in submission order.
type Loop struct {
	ch   chan func()
	stop chan struct{}
	log  *log.Logger
}

func NewLoop(logger *log.Logger) *Loop {
	return &Loop{
		// Sized for bursts of apply callbacks; RunWorld falls back to a
		// handoff goroutine rather than blocking if the buffer fills.
		ch:   make(chan func(), 4096),
		stop: make(chan struct{}),
		log:  logger,
	}
}

// Run drains scheduled callbacks until the context is cancelled or Stop is
// called. It must be the only goroutine touching world-owned state.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case fn := <-l.ch:
			l.invoke(fn)
		}
	}
}

func (l *Loop) Stop() { close(l.stop) }

func (l *Loop) RunWorld(fn func()) {
	select {
	case l.ch <- fn:
	default:
		// Buffer full: hand off to a goroutine so the submitting side
		// (often a worker completing a roll) is never blocked.
		go func() {
			select {
			case l.ch <- fn:
			case <-l.stop:
			}
		}()
	}
}

func (l *Loop) RunWorker(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && l.log != nil {
				l.log.Printf("worker panic recovered: %v", r)
			}
		}()
		fn()
	}()
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil && l.log != nil {
			l.log.Printf("world callback panic recovered: %v", r)
		}
	}()
	fn()
}
