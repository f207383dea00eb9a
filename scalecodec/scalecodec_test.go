package scalecodec

import "testing"

func TestBoolRoundTrip(t *testing.T) {
	for _, v := range []bool{true, false} {
		var enc byte
		if v {
			enc = 1
		}
		d := NewDecoder([]byte{enc})
		got, err := d.Bool()
		if err != nil || got != v {
			t.Fatalf("Bool() = %v, %v, want %v, nil", got, err, v)
		}
	}
}

func TestBoolRejectsInvalidByte(t *testing.T) {
	d := NewDecoder([]byte{0x07})
	if _, err := d.Bool(); err == nil {
		t.Fatal("expected decode error for invalid bool byte")
	}
}

func TestUint32LittleEndian(t *testing.T) {
	d := NewDecoder([]byte{0x01, 0x00, 0x00, 0x00})
	got, err := d.Uint32()
	if err != nil || got != 1 {
		t.Fatalf("Uint32() = %d, %v, want 1, nil", got, err)
	}
}

func TestCompactUintSingleByteMode(t *testing.T) {
	// 0 encoded in single-byte mode: (0 << 2) | 0b00 = 0x00
	d := NewDecoder([]byte{0x00})
	got, err := d.CompactUint()
	if err != nil || got != 0 {
		t.Fatalf("CompactUint() = %d, %v, want 0, nil", got, err)
	}
}

func TestCompactUintTwoByteMode(t *testing.T) {
	// 69 encoded in two-byte mode per the SCALE spec's worked example: 0x15 0x01
	d := NewDecoder([]byte{0x15, 0x01})
	got, err := d.CompactUint()
	if err != nil || got != 69 {
		t.Fatalf("CompactUint() = %d, %v, want 69, nil", got, err)
	}
}

func TestCompactUintFourByteMode(t *testing.T) {
	// 65535 encoded in four-byte mode per the SCALE spec's worked example.
	d := NewDecoder([]byte{0xfe, 0xff, 0x03, 0x00})
	got, err := d.CompactUint()
	if err != nil || got != 65535 {
		t.Fatalf("CompactUint() = %d, %v, want 65535, nil", got, err)
	}
}

func TestCompactUintEncodeDecodeRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 63, 64, 16383, 16384, 1 << 29, 1 << 40, ^uint64(0)} {
		e := NewEncoder()
		e.PutCompactUint(v)
		d := NewDecoder(e.Bytes())
		got, err := d.CompactUint()
		if err != nil {
			t.Fatalf("v=%d: decode error %v", v, err)
		}
		if got != v {
			t.Fatalf("v=%d: round trip got %d", v, got)
		}
	}
}

func TestBytesAndVecLen(t *testing.T) {
	e := NewEncoder()
	e.PutCompactUint(3)
	e.PutRaw([]byte{0xaa, 0xbb, 0xcc})
	d := NewDecoder(e.Bytes())
	n, err := d.VecLen()
	if err != nil || n != 3 {
		t.Fatalf("VecLen() = %d, %v, want 3, nil", n, err)
	}
	b, err := d.Bytes(n)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != string([]byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("Bytes() = %x", b)
	}
}

func TestTakeFailsOnTruncatedInput(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	if _, err := d.Uint32(); err == nil {
		t.Fatal("expected decode error on truncated input")
	}
}
