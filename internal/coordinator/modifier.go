package coordinator

import (
	"sync"

	"valloot.dev/internal/loot"
)

var (
	modMu     sync.RWMutex
	modifiers = map[string]func() loot.Modifier{}
)

// RegisterModifier makes a named result modifier available for config-time
// resolution. Later registrations under the same name replace earlier ones.
func RegisterModifier(name string, factory func() loot.Modifier) {
	modMu.Lock()
	defer modMu.Unlock()
	modifiers[name] = factory
}

// ResolveModifier returns the registered modifier, or a no-op when the name
// is unknown or empty. Resolution happens once at startup; a missing
// integration degrades to plain rolls rather than an error.
func ResolveModifier(name string) loot.Modifier {
	if name == "" {
		return loot.NoopModifier{}
	}
	modMu.RLock()
	factory, ok := modifiers[name]
	modMu.RUnlock()
	if !ok {
		return loot.NoopModifier{}
	}
	return factory()
}
