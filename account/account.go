// Package account implements Substrate-style account identifiers and
// their SS58 text encoding. The pack has no ecosystem SS58 or base58
// library (the teacher and every other example repo are secp256k1/EVM
// address-oriented — `tos-network-gtos/crypto` has no base58 codec at
// all), so the base58 alphabet and the blake2b-512 checksum scheme are
// hand-implemented here, grounded directly on
// `original_source/src/storage_client.rs`'s use of `subxt::utils::AccountId32`
// and `sp_core::crypto::Ss58AddressFormat`, whose wire behavior is
// reproduced rather than its Rust source translated.
package account

import (
	"math/big"

	"github.com/tos-network/electsim/apperr"
	"golang.org/x/crypto/blake2b"
)

// ID is a 32-byte Substrate account identifier (an sr25519/ed25519
// public key, or a derived pseudo-account).
type ID [32]byte

const ss58Prefix = "SS58PRE"

var base58Alphabet = []byte("123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz")

var base58Index = func() map[byte]int {
	m := make(map[byte]int, len(base58Alphabet))
	for i, c := range base58Alphabet {
		m[c] = i
	}
	return m
}()

func base58Encode(b []byte) string {
	zero := 0
	for zero < len(b) && b[zero] == 0 {
		zero++
	}
	x := new(big.Int).SetBytes(b)
	base := big.NewInt(58)
	mod := new(big.Int)
	var out []byte
	for x.Sign() > 0 {
		x.DivMod(x, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for i := 0; i < zero; i++ {
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func base58Decode(s string) ([]byte, error) {
	x := new(big.Int)
	base := big.NewInt(58)
	for i := 0; i < len(s); i++ {
		v, ok := base58Index[s[i]]
		if !ok {
			return nil, apperr.Decode(nil, "invalid base58 character %q at position %d", s[i], i)
		}
		x.Mul(x, base)
		x.Add(x, big.NewInt(int64(v)))
	}
	decoded := x.Bytes()
	zero := 0
	for zero < len(s) && s[zero] == byte(base58Alphabet[0]) {
		zero++
	}
	out := make([]byte, zero+len(decoded))
	copy(out[zero:], decoded)
	return out, nil
}

// checksum computes the blake2b-512 checksum Substrate prepends with a
// fixed "SS58PRE" salt, returning its first n bytes.
func checksum(payload []byte, n int) []byte {
	h, err := blake2b.New512(nil)
	if err != nil {
		panic("blake2b: " + err.Error())
	}
	h.Write([]byte(ss58Prefix))
	h.Write(payload)
	return h.Sum(nil)[:n]
}

// ssVersionBytes encodes a SS58 address type as 1 or 2 bytes per the
// simple/full format split at version 64, matching sp_core's encoding.
func ssVersionBytes(version uint16) []byte {
	if version < 64 {
		return []byte{byte(version)}
	}
	ident := version & 0b0011_1111_1111_1111
	first := byte(0b0100_0000 | ((ident & 0b1111_1100) >> 2))
	second := byte(ident>>8) | byte(ident&0b11)<<6
	return []byte{first, second}
}

func decodeSSVersion(b []byte) (version uint16, headerLen int, err error) {
	if len(b) == 0 {
		return 0, 0, apperr.Decode(nil, "empty ss58 payload")
	}
	if b[0] < 64 {
		return uint16(b[0]), 1, nil
	}
	if len(b) < 2 {
		return 0, 0, apperr.Decode(nil, "truncated ss58 version header")
	}
	lower := uint16(b[0]<<2) | uint16(b[1]>>6)
	upper := uint16(b[1] & 0b0011_1111)
	return lower | (upper << 8), 2, nil
}

// Encode renders id as its SS58 text form under the given address
// version byte (spec.md §3's chain-dependent prefix).
func Encode(id ID, version uint16) string {
	header := ssVersionBytes(version)
	payload := append(append([]byte{}, header...), id[:]...)
	cksumLen := 2
	sum := checksum(payload, cksumLen)
	full := append(payload, sum...)
	return base58Encode(full)
}

// Decode parses an SS58-encoded address string, returning the account id
// and the version byte it was encoded under. It fails with KindDecode if
// the base58 payload is malformed or the checksum does not match.
func Decode(s string) (ID, uint16, error) {
	raw, err := base58Decode(s)
	if err != nil {
		return ID{}, 0, err
	}
	if len(raw) < 3 {
		return ID{}, 0, apperr.Decode(nil, "ss58 payload too short: %d bytes", len(raw))
	}
	version, headerLen, err := decodeSSVersion(raw)
	if err != nil {
		return ID{}, 0, err
	}
	cksumLen := 2
	if len(raw) != headerLen+32+cksumLen {
		return ID{}, 0, apperr.Decode(nil, "unexpected ss58 payload length %d", len(raw))
	}
	body := raw[:headerLen+32]
	wantSum := raw[headerLen+32:]
	gotSum := checksum(body, cksumLen)
	for i := range wantSum {
		if wantSum[i] != gotSum[i] {
			return ID{}, 0, apperr.Decode(nil, "ss58 checksum mismatch")
		}
	}
	var id ID
	copy(id[:], raw[headerLen:headerLen+32])
	return id, version, nil
}
