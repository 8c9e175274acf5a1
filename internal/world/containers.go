package world

import (
	"context"
	"errors"
	"fmt"

	"valloot.dev/internal/items"
	"valloot.dev/internal/loot"
)

var (
	ErrNoContainer  = errors.New("no container at position")
	ErrPlayerPlaced = errors.New("container is player placed")
	ErrNotConverted = errors.New("container is not converted")
)

// ContainerInfo is a value snapshot of a container for callers outside the
// world loop.
type ContainerInfo struct {
	Kind         string
	Pos          loot.Vec3i
	Slots        []items.Stack
	Converted    bool
	PlayerPlaced bool
}

// call runs fn on the world-loop goroutine and waits for its error, giving
// up when ctx expires.
func (w *World) call(ctx context.Context, fn func() error) error {
	resp := make(chan error, 1)
	w.sched.RunWorld(func() { resp <- fn() })
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestSeed adds a world-generated container with its natural contents.
// Seeded containers are eligible for conversion.
func (w *World) RequestSeed(ctx context.Context, kind string, pos loot.Vec3i, slots []items.Stack) error {
	return w.call(ctx, func() error { return w.handleSeed(kind, pos, slots) })
}

func (w *World) handleSeed(kind string, pos loot.Vec3i, slots []items.Stack) error {
	key := w.key(pos)
	if _, exists := w.containers[key]; exists {
		return fmt.Errorf("seed %s: position occupied", key)
	}
	w.containers[key] = &Container{Kind: kind, Pos: pos, Slots: items.Clone(slots)}
	return nil
}

// RequestPlace adds a player-placed container. It is tagged as such and is
// permanently exempt from conversion and loot generation.
func (w *World) RequestPlace(ctx context.Context, kind string, pos loot.Vec3i, actorID string) error {
	return w.call(ctx, func() error { return w.handlePlace(kind, pos, actorID) })
}

func (w *World) handlePlace(kind string, pos loot.Vec3i, actorID string) error {
	key := w.key(pos)
	if _, exists := w.containers[key]; exists {
		return fmt.Errorf("place %s: position occupied", key)
	}
	w.containers[key] = &Container{Kind: kind, Pos: pos, PlayerPlaced: true}
	w.logf("container %s placed by %s", key, actorID)
	return nil
}

// RequestConvert turns one seeded container into a loot container: its
// original contents are backed up durably and its slots cleared for the
// roll engine. Converting an already-converted container is a no-op.
func (w *World) RequestConvert(ctx context.Context, pos loot.Vec3i) error {
	return w.call(ctx, func() error { return w.handleConvert(w.key(pos)) })
}

func (w *World) handleConvert(key string) error {
	c := w.containers[key]
	if c == nil {
		return ErrNoContainer
	}
	if c.PlayerPlaced {
		return ErrPlayerPlaced
	}
	if c.Converted {
		return nil
	}
	backup, err := items.Encode(c.Slots)
	if err != nil {
		return fmt.Errorf("convert %s: %w", key, err)
	}
	w.store.SaveOriginalContent(key, backup)
	c.Slots = nil
	c.Converted = true
	w.coord.RecordConversion()
	return nil
}

// RequestConvertAll sweeps the whole world, converting every eligible
// container, and reports how many were converted.
func (w *World) RequestConvertAll(ctx context.Context) (int, error) {
	var n int
	err := w.call(ctx, func() error {
		for key, c := range w.containers {
			if c.PlayerPlaced || c.Converted {
				continue
			}
			if err := w.handleConvert(key); err != nil {
				w.logf("convert sweep %s: %v", key, err)
				continue
			}
			n++
		}
		return nil
	})
	return n, err
}

// RequestRestore undoes a conversion: the backed-up contents replace the
// slots and the backup is removed. The backup is only deleted once the
// contents are safely back in place.
func (w *World) RequestRestore(ctx context.Context, pos loot.Vec3i) error {
	return w.call(ctx, func() error { return w.handleRestore(w.key(pos)) })
}

func (w *World) handleRestore(key string) error {
	c := w.containers[key]
	if c == nil {
		return ErrNoContainer
	}
	if !c.Converted {
		return ErrNotConverted
	}
	backup, ok := w.store.GetOriginalContent(key)
	if !ok {
		return fmt.Errorf("restore %s: no backup", key)
	}
	slots, err := items.Decode(backup)
	if err != nil {
		return fmt.Errorf("restore %s: %w", key, err)
	}
	c.Slots = slots
	c.Converted = false
	w.store.RemoveOriginalContent(key)
	return nil
}

// RequestContainer returns a value snapshot of the container at pos.
func (w *World) RequestContainer(ctx context.Context, pos loot.Vec3i) (ContainerInfo, error) {
	var info ContainerInfo
	err := w.call(ctx, func() error {
		c := w.containers[w.key(pos)]
		if c == nil {
			return ErrNoContainer
		}
		info = ContainerInfo{
			Kind:         c.Kind,
			Pos:          c.Pos,
			Slots:        items.Clone(c.Slots),
			Converted:    c.Converted,
			PlayerPlaced: c.PlayerPlaced,
		}
		return nil
	})
	return info, err
}

// RequestSetTime sets the world clock, in ticks of a 24000-tick day.
func (w *World) RequestSetTime(ctx context.Context, t uint64) error {
	return w.call(ctx, func() error {
		w.worldTime = t
		return nil
	})
}
