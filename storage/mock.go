package storage

import "context"

// MockBackend is an in-memory Backend stand-in for tests, mirroring the
// role original_source's `#[automock] ChainClientTrait`/`RpcClient`
// mocks play throughout storage_client.rs/snapshot.rs's test suites:
// canned responses keyed by storage key, installed by the test, with no
// network involved. It is exported (not a _test.go helper) so snapshot,
// mining and service package tests can depend on it directly.
type MockBackend struct {
	Storage          map[string][]byte // hex-less raw key -> raw SCALE value
	Constants        map[string][]byte // "pallet.name" -> raw SCALE value
	SpecName         string
	Keys             map[string][][]byte // hex-less raw prefix -> enumerated keys
	BlockHash        BlockHash
	ReadStorageErr   error
	FetchConstantErr error
}

// NewMockBackend returns an empty MockBackend ready for callers to
// populate before use.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Storage:   make(map[string][]byte),
		Constants: make(map[string][]byte),
		Keys:      make(map[string][][]byte),
	}
}

func (m *MockBackend) ReadStorage(ctx context.Context, key []byte, at BlockHash) ([]byte, error) {
	if m.ReadStorageErr != nil {
		return nil, m.ReadStorageErr
	}
	return m.Storage[string(key)], nil
}

func (m *MockBackend) FetchConstant(ctx context.Context, pallet, name string) ([]byte, error) {
	if m.FetchConstantErr != nil {
		return nil, m.FetchConstantErr
	}
	return m.Constants[pallet+"."+name], nil
}

func (m *MockBackend) RuntimeVersion(ctx context.Context) (string, error) {
	return m.SpecName, nil
}

func (m *MockBackend) BlockHashAt(ctx context.Context, number *uint64) (BlockHash, error) {
	return m.BlockHash, nil
}

func (m *MockBackend) StorageKeysPaged(ctx context.Context, prefix []byte, count int, startKey []byte, at BlockHash) ([][]byte, error) {
	keys := m.Keys[string(prefix)]
	if count < len(keys) {
		return keys[:count], nil
	}
	return keys, nil
}
