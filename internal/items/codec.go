package items

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Snapshots are stored as base64(zstd(json)). Loot lists are small but
// numerous; zstd at the fastest level keeps the durable store compact
// without measurable encode cost.

var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDec, _ = zstd.NewReader(nil)
)

// Encode serializes a slot list to its durable string form.
func Encode(stacks []Stack) (string, error) {
	raw, err := json.Marshal(stacks)
	if err != nil {
		return "", fmt.Errorf("encode items: %w", err)
	}
	compressed := zstdEnc.EncodeAll(raw, nil)
	return base64.StdEncoding.EncodeToString(compressed), nil
}

// Decode reverses Encode.
func Decode(data string) ([]Stack, error) {
	compressed, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	raw, err := zstdDec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	var stacks []Stack
	if err := json.Unmarshal(raw, &stacks); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return stacks, nil
}
