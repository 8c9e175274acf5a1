package loot

import (
	"time"

	"valloot.dev/internal/items"
)

// Result is the outcome of one roll: the produced items plus metadata.
// Ownership crosses goroutines exactly once: the worker that rolls it hands
// it to the world-owning goroutine and never touches it again.
type Result struct {
	TableName string
	Items     []items.Stack
	RollTime  time.Duration
	Context   Context
}

// Modifier mutates a Result in place after all pools are rolled. It is the
// single capability the external enrichment integration implements.
type Modifier interface {
	Modify(*Result)
}

// NoopModifier is the compiled-in fallback for when no enrichment
// integration is available.
type NoopModifier struct{}

func (NoopModifier) Modify(*Result) {}
