package world

import (
	"context"

	"valloot.dev/internal/coordinator"
	"valloot.dev/internal/loot"
)

// OpenRequest is one actor opening a container at a position.
type OpenRequest struct {
	ActorID   string
	ActorName string
	Pos       loot.Vec3i
	// Metadata carries integration-provided facts (skill levels, permission
	// flags) into condition evaluation.
	Metadata map[string]any
	// Bypass skips the first-open gate. Admin use.
	Bypass bool
}

// RequestOpen routes an open through the loot coordinator. The returned
// outcome is the synchronous disposition: a scheduled roll lands in the
// container later, via a world-loop callback.
func (w *World) RequestOpen(ctx context.Context, req OpenRequest) (coordinator.Outcome, error) {
	var outcome coordinator.Outcome
	err := w.call(ctx, func() error {
		var err error
		outcome, err = w.handleOpen(req)
		return err
	})
	return outcome, err
}

func (w *World) handleOpen(req OpenRequest) (coordinator.Outcome, error) {
	key := w.key(req.Pos)
	c := w.containers[key]
	if c == nil {
		return 0, ErrNoContainer
	}
	if c.PlayerPlaced {
		return 0, ErrPlayerPlaced
	}
	if !c.Converted {
		return 0, ErrNotConverted
	}

	lctx := w.snapshotContext(c, req.ActorID, req.ActorName, req.Metadata)
	outcome := w.coord.Open(coordinator.OpenRequest{
		Context: lctx,
		Table:   w.classify(c.Kind),
		Target:  containerTarget{w: w, key: key},
		Bypass:  req.Bypass,
	})
	return outcome, nil
}
