package loot

// Context is an immutable snapshot of who/where/when for one roll. It is
// built synchronously on the world-owning goroutine and carries only value
// data, so it is safe to hand to a worker. Metadata is read-only after
// construction.
type Context struct {
	ActorID    string
	ActorName  string
	Pos        Vec3i
	WorldID    string
	WorldName  string
	EntityKind string
	Biome      string
	WorldTime  uint64
	Night      bool
	ActorLevel int
	Metadata   map[string]any
}

// EntityKey is the deterministic identity of the target location.
func (c Context) EntityKey() string {
	return EntityKey(c.WorldID, c.Pos)
}

// Metadatum returns an opaque metadata value, or nil.
func (c Context) Metadatum(key string) any {
	return c.Metadata[key]
}

// SkillLevel reads an integration-provided skill level from metadata.
func (c Context) SkillLevel(skill string) (int, bool) {
	switch v := c.Metadata["skill_"+skill].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Permission reads an integration-provided permission flag from metadata.
func (c Context) Permission(perm string) bool {
	v, _ := c.Metadata["perm_"+perm].(bool)
	return v
}
