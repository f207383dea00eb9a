// Package storage reads raw runtime storage off a Substrate-family node
// and derives the storage keys Substrate's map hashers produce. Grounded
// on original_source/src/storage_client.rs's `module_prefix`/`map_key`/
// `double_map_key`/`triple_map_key` helpers: a twox128 module+item
// prefix followed by one twox64-concat segment per map key.
//
// twox64/twox128 are Substrate's names for xxhash64 applied once (twox64)
// or twice back-to-back with seeds 0 and 1, concatenated (twox128). No
// example repo imports a twox-branded package, but every one of them that
// touches hashing reaches for `cespare/xxhash/v2` (the teacher's go.mod
// requires it), which is the same xxhash64 primitive twox is built on, so
// that dependency is reused here rather than hand-rolling xxhash.
package storage

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// twox64 returns the 8-byte little-endian xxhash64 digest of data with
// seed 0, Substrate's Twox64Concat building block.
func twox64(data []byte) []byte {
	h := xxhash.NewWithSeed(0)
	h.Write(data)
	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], h.Sum64())
	return out[:]
}

// twox128 returns the 16-byte digest Substrate uses to prefix pallet and
// item names: two twox64 passes over the same input with seeds 0 and 1,
// concatenated.
func twox128(data []byte) []byte {
	out := make([]byte, 0, 16)
	for seed := uint64(0); seed < 2; seed++ {
		h := xxhash.NewWithSeed(seed)
		h.Write(data)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], h.Sum64())
		out = append(out, b[:]...)
	}
	return out
}

// twox64Concat is the Twox64Concat storage hasher: the twox64 digest of
// key immediately followed by key itself, so the original key can be
// recovered from an iterated storage key (the snapshot synthesis path
// recovers each stash this way from the keys state_getKeysPaged returns).
func twox64Concat(key []byte) []byte {
	return append(twox64(key), key...)
}

// modulePrefix returns the 32-byte prefix identifying a pallet+storage
// item pair, e.g. ("Staking", "Bonded").
func modulePrefix(module, item string) []byte {
	return append(twox128([]byte(module)), twox128([]byte(item))...)
}

// ValueKey derives the storage key for a plain (non-map) storage value.
func ValueKey(module, item string) []byte {
	return modulePrefix(module, item)
}

// MapKey derives the storage key for a single-key StorageMap entry.
func MapKey(module, item string, key []byte) []byte {
	return append(modulePrefix(module, item), twox64Concat(key)...)
}

// DoubleMapKey derives the storage key for a StorageDoubleMap entry.
func DoubleMapKey(module, item string, key1, key2 []byte) []byte {
	k := append(modulePrefix(module, item), twox64Concat(key1)...)
	return append(k, twox64Concat(key2)...)
}

// TripleMapKey derives the storage key for a StorageNMap entry with three
// key components, e.g. Staking.ErasStakersPaged(era, validator, page).
func TripleMapKey(module, item string, key1, key2, key3 []byte) []byte {
	k := append(modulePrefix(module, item), twox64Concat(key1)...)
	k = append(k, twox64Concat(key2)...)
	return append(k, twox64Concat(key3)...)
}
