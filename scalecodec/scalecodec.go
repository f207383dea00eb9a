// Package scalecodec implements the subset of Parity SCALE encoding this
// tool needs to decode storage values read off a Substrate-family chain:
// fixed-width integers, compact integers, booleans, byte vectors, typed
// vectors, options and simple tagged enums. No SCALE codec library
// appears anywhere in the retrieved example pack (the teacher and its
// siblings are all EVM/RLP-oriented — `tos-network-gtos/rlp` encodes the
// opposite wire format), so this is hand-rolled directly against the
// wire layout `storage_client.rs`'s `<T as Decode>::decode` calls rely
// on, grounded on parity-scale-codec's published format rather than any
// Go source.
package scalecodec

import (
	"encoding/binary"

	"github.com/tos-network/electsim/apperr"
)

// Decoder reads SCALE-encoded primitives from a byte slice, advancing an
// internal cursor. It never panics; every read can fail with a
// KindDecode error on truncated input.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder wraps buf for sequential SCALE decoding.
func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

// Remaining reports how many bytes are left unconsumed.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

func (d *Decoder) take(n int) ([]byte, error) {
	if d.pos+n > len(d.buf) {
		return nil, apperr.Decode(nil, "scale: need %d bytes, have %d", n, d.Remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// Bool decodes a SCALE boolean (a single 0x00/0x01 byte).
func (d *Decoder) Bool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, apperr.Decode(nil, "scale: invalid bool byte 0x%02x", b[0])
	}
}

// Uint8 decodes a fixed-width u8.
func (d *Decoder) Uint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 decodes a fixed-width, little-endian u16.
func (d *Decoder) Uint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 decodes a fixed-width, little-endian u32.
func (d *Decoder) Uint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 decodes a fixed-width, little-endian u64.
func (d *Decoder) Uint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uint128 decodes a fixed-width, little-endian u128 into a 16-byte
// little-endian buffer's big-endian big.Int-friendly byte order
// (reversed), the representation `account.ID`-adjacent balance code
// expects when handing bytes to math/big.Int.SetBytes.
func (d *Decoder) Uint128() ([16]byte, error) {
	b, err := d.take(16)
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	for i := 0; i < 16; i++ {
		out[i] = b[15-i]
	}
	return out, nil
}

// Bytes decodes a fixed number of raw bytes, e.g. a 32-byte AccountId.
func (d *Decoder) Bytes(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// CompactUint decodes a SCALE compact (general) integer, covering the
// single-byte, two-byte and four-byte modes and the big-integer mode up
// to 8 bytes; a wider big-integer value fails with KindDecode.
func (d *Decoder) CompactUint() (uint64, error) {
	first, err := d.take(1)
	if err != nil {
		return 0, err
	}
	mode := first[0] & 0b11
	switch mode {
	case 0b00:
		return uint64(first[0] >> 2), nil
	case 0b01:
		second, err := d.take(1)
		if err != nil {
			return 0, err
		}
		v := uint16(first[0]) | uint16(second[0])<<8
		return uint64(v >> 2), nil
	case 0b10:
		rest, err := d.take(3)
		if err != nil {
			return 0, err
		}
		v := uint32(first[0]) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		return uint64(v >> 2), nil
	default:
		extraBytes := int(first[0]>>2) + 4
		if extraBytes > 8 {
			return 0, apperr.Decode(nil, "scale: compact integer wider than 8 bytes (%d) unsupported", extraBytes)
		}
		rest, err := d.take(extraBytes)
		if err != nil {
			return 0, err
		}
		var v uint64
		for i := extraBytes - 1; i >= 0; i-- {
			v = v<<8 | uint64(rest[i])
		}
		return v, nil
	}
}

// VecLen decodes the compact length prefix that precedes every SCALE
// `Vec<T>`/`BoundedVec<T, _>` encoding.
func (d *Decoder) VecLen() (int, error) {
	n, err := d.CompactUint()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// OptionSome decodes the 1-byte Option discriminant, returning whether
// the value is present. Callers decode the inner value themselves only
// when this returns true.
func (d *Decoder) OptionSome() (bool, error) {
	return d.Bool()
}

// EnumVariant decodes the 1-byte discriminant of a SCALE enum.
func (d *Decoder) EnumVariant() (uint8, error) {
	return d.Uint8()
}

// Encoder builds SCALE-encoded byte sequences, used for encoding storage
// map keys (e.g. an era index or AccountId) before hashing them.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the bytes written so far.
func (e *Encoder) Bytes() []byte { return e.buf }

// PutUint32 appends a fixed-width, little-endian u32.
func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

// PutRaw appends raw bytes verbatim (used for already-encoded AccountIds).
func (e *Encoder) PutRaw(b []byte) { e.buf = append(e.buf, b...) }

// PutCompactUint appends v using the smallest compact-integer mode that
// can represent it.
func (e *Encoder) PutCompactUint(v uint64) {
	switch {
	case v < 1<<6:
		e.buf = append(e.buf, byte(v<<2))
	case v < 1<<14:
		e.buf = append(e.buf, byte(v<<2)|0b01, byte(v>>6))
	case v < 1<<30:
		e.buf = append(e.buf, byte(v<<2)|0b10, byte(v>>6), byte(v>>14), byte(v>>22))
	default:
		var tmp []byte
		for x := v; x > 0; x >>= 8 {
			tmp = append(tmp, byte(x))
		}
		e.buf = append(e.buf, byte((len(tmp)-4)<<2)|0b11)
		e.buf = append(e.buf, tmp...)
	}
}
