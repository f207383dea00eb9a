package storage

import "context"

// BlockHash identifies a block to read storage at. A nil/empty hash
// means "read at the chain tip", matching the source tool's
// `Option<H256>` parameter threaded through every storage read.
type BlockHash []byte

// Backend abstracts the transport used to read runtime storage and
// fetch pallet constants, grounded on original_source's
// `ChainClientTrait`: production code talks to a live node, tests stub
// the same interface with canned responses, matching the mockall-based
// tests throughout storage_client.rs and snapshot.rs.
type Backend interface {
	// ReadStorage returns the raw SCALE-encoded bytes stored at key at
	// the given block (or the tip, if at is empty), or (nil, nil) if the
	// key has no value.
	ReadStorage(ctx context.Context, key []byte, at BlockHash) ([]byte, error)
	// FetchConstant returns the raw SCALE-encoded bytes of a pallet
	// constant, e.g. ("MultiBlockElection", "Pages").
	FetchConstant(ctx context.Context, pallet, name string) ([]byte, error)
	// RuntimeVersion returns the chain's spec_name, used to auto-detect
	// which chainconfig.Chain profile applies.
	RuntimeVersion(ctx context.Context) (specName string, err error)
	// BlockHashAt returns the block hash at the given block number, or
	// the tip's hash if number is nil.
	BlockHashAt(ctx context.Context, number *uint64) (BlockHash, error)
	// StorageKeysPaged enumerates up to count storage keys under prefix,
	// starting after startKey (nil for the beginning), used to walk an
	// entire StorageMap (e.g. Staking.Validators) when synthesizing a
	// snapshot from raw chain state rather than reading a paged
	// election snapshot directly.
	StorageKeysPaged(ctx context.Context, prefix []byte, count int, startKey []byte, at BlockHash) ([][]byte, error)
}
