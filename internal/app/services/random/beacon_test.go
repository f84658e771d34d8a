package random

import (
	"bytes"
	"testing"
)

func TestGenerateVerify(t *testing.T) {
	b := NewBeaconFromSeed([]byte("test-beacon"))

	out := b.Generate([]byte("pool-1/claim-1"))
	if len(out.Randomness) != 32 {
		t.Fatalf("expected 32-byte randomness, got %d", len(out.Randomness))
	}
	if !Verify(b.PublicKey(), out) {
		t.Fatal("expected valid output to verify")
	}

	tampered := out
	tampered.Proof = bytes.Clone(out.Proof)
	tampered.Proof[0] ^= 0xff
	if Verify(b.PublicKey(), tampered) {
		t.Fatal("expected tampered proof to fail verification")
	}

	forged := out
	forged.Randomness = bytes.Clone(out.Randomness)
	forged.Randomness[0] ^= 0xff
	if Verify(b.PublicKey(), forged) {
		t.Fatal("expected mismatched randomness to fail verification")
	}
}

func TestGenerateDistinct(t *testing.T) {
	b := NewBeaconFromSeed([]byte("test-beacon"))

	first := b.Generate([]byte("same-context"))
	second := b.Generate([]byte("same-context"))
	if bytes.Equal(first.Randomness, second.Randomness) {
		t.Fatal("expected successive draws over the same context to differ")
	}
}

func TestDrawIntRange(t *testing.T) {
	b := NewBeaconFromSeed([]byte("test-beacon"))

	seen := make(map[int64]bool)
	for i := 0; i < 200; i++ {
		v, out, err := b.DrawInt([]byte("range"), 1, 10)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if v < 1 || v > 10 {
			t.Fatalf("draw %d outside [1, 10]", v)
		}
		if !Verify(b.PublicKey(), out) {
			t.Fatal("expected draw output to verify")
		}
		seen[v] = true
	}
	if len(seen) < 5 {
		t.Fatalf("expected varied draws, saw only %d distinct values", len(seen))
	}
}

func TestDrawIntDegenerate(t *testing.T) {
	b := NewBeaconFromSeed([]byte("test-beacon"))

	v, _, err := b.DrawInt([]byte("single"), 7, 7)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}

	if _, _, err := b.DrawInt([]byte("inverted"), 5, 4); err == nil {
		t.Fatal("expected error for inverted range")
	}
}
