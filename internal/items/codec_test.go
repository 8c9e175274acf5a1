package items_test

import (
	"testing"

	"valloot.dev/internal/items"
)

func TestCodecRoundTrip(t *testing.T) {
	in := []items.Stack{
		{Kind: "bread", Count: 3},
		{Kind: "sword", Count: 1, Name: "Dune Blade", Lore: []string{"Forged in sand", "Sharp"}},
		{Kind: "arrow", Count: 16},
	}

	data, err := items.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := items.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Kind != in[i].Kind || out[i].Count != in[i].Count || out[i].Name != in[i].Name {
			t.Fatalf("slot %d mismatch: %+v vs %+v", i, out[i], in[i])
		}
	}
	if out[1].Lore[0] != "Forged in sand" {
		t.Fatalf("lore lost: %+v", out[1])
	}
}

func TestCodecDeterministic(t *testing.T) {
	in := []items.Stack{{Kind: "coin", Count: 9}}
	a, err := items.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := items.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if a != b {
		t.Fatal("same contents must serialize identically")
	}
}

func TestCodecEmpty(t *testing.T) {
	data, err := items.Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := items.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty list, got %d", len(out))
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	if _, err := items.Decode("not base64!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := items.Decode("aGVsbG8gd29ybGQ="); err == nil {
		t.Fatal("expected error for non-zstd payload")
	}
}

func TestClone(t *testing.T) {
	in := []items.Stack{{Kind: "gem", Count: 1, Lore: []string{"a"}}}
	out := items.Clone(in)
	out[0].Lore[0] = "b"
	out[0].Count = 5
	if in[0].Lore[0] != "a" || in[0].Count != 1 {
		t.Fatal("clone shares memory with source")
	}
	if items.Clone(nil) != nil {
		t.Fatal("nil in, nil out")
	}
}
