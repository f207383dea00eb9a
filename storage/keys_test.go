package storage

import "testing"

func TestTwox128LengthAndDeterminism(t *testing.T) {
	a := twox128([]byte("Staking"))
	b := twox128([]byte("Staking"))
	if len(a) != 16 {
		t.Fatalf("expected 16-byte digest, got %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatal("expected twox128 to be deterministic")
	}
}

func TestTwox128DiffersAcrossInputs(t *testing.T) {
	a := twox128([]byte("Staking"))
	b := twox128([]byte("Session"))
	if string(a) == string(b) {
		t.Fatal("expected different inputs to hash differently")
	}
}

func TestTwox64ConcatAppendsOriginalKey(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef}
	out := twox64Concat(key)
	if len(out) != 8+len(key) {
		t.Fatalf("expected %d bytes, got %d", 8+len(key), len(out))
	}
	if string(out[8:]) != string(key) {
		t.Fatal("expected the original key to follow the twox64 digest")
	}
}

func TestMapKeyStructure(t *testing.T) {
	prefix := modulePrefix("Staking", "Bonded")
	if len(prefix) != 32 {
		t.Fatalf("expected 32-byte module prefix, got %d", len(prefix))
	}
	key := []byte{0x01, 0x02, 0x03}
	full := MapKey("Staking", "Bonded", key)
	if len(full) != 32+8+len(key) {
		t.Fatalf("expected %d bytes, got %d", 32+8+len(key), len(full))
	}
	if string(full[:32]) != string(prefix) {
		t.Fatal("expected MapKey to start with the module prefix")
	}
}

func TestDoubleAndTripleMapKeyLengths(t *testing.T) {
	k1, k2, k3 := []byte{1}, []byte{2, 2}, []byte{3, 3, 3}
	dm := DoubleMapKey("Staking", "ErasStakersOverview", k1, k2)
	if len(dm) != 32+8+1+8+2 {
		t.Fatalf("unexpected double map key length %d", len(dm))
	}
	tm := TripleMapKey("Staking", "ErasStakersPaged", k1, k2, k3)
	if len(tm) != 32+8+1+8+2+8+3 {
		t.Fatalf("unexpected triple map key length %d", len(tm))
	}
}
