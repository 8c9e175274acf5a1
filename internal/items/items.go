// Package items holds the item stack value type and the codec used to
// persist container contents and per-actor loot snapshots.
package items

// Stack is one slot's worth of items.
type Stack struct {
	Kind  string   `json:"kind"`
	Count int      `json:"count"`
	Name  string   `json:"name,omitempty"`
	Lore  []string `json:"lore,omitempty"`
}

// Clone returns a deep copy of a slot list. Useful when contents are handed
// across an ownership boundary.
func Clone(stacks []Stack) []Stack {
	if stacks == nil {
		return nil
	}
	out := make([]Stack, len(stacks))
	copy(out, stacks)
	for i := range out {
		if out[i].Lore != nil {
			lore := make([]string, len(out[i].Lore))
			copy(lore, out[i].Lore)
			out[i].Lore = lore
		}
	}
	return out
}
