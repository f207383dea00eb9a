// Package runtimeconfig holds the miner constants that, unlike
// chainconfig's compile-time profiles, are fetched from the target
// chain once at startup: page counts, per-page capacity bounds, and the
// maximum votes a voter may cast. It mirrors the source tool's
// `miner_config::{set_runtime_constants, get_runtime_constants}` pair —
// a process-wide value set exactly once and read everywhere after —
// translated from a `OnceLock` to Go's `sync.Once`, plus a separate
// mutable cell for the balancing-iteration count, which the source tool
// keeps behind a plain `Mutex` because (unlike the rest) it can be
// overridden per CLI invocation after startup.
package runtimeconfig

import (
	"sync"
	"sync/atomic"

	"github.com/tos-network/electsim/apperr"
)

// Constants are the bounds fetched from `MultiBlockElection`/`Staking`
// pallet constants. Pages has no documented default: the tool treats a
// fetch failure for it as fatal, since nothing sane can be inferred.
type Constants struct {
	Pages                 uint32
	MaxWinnersPerPage     uint32
	MaxBackersPerWinner   uint32
	VoterSnapshotPerBlock uint32
	TargetSnapshotPerBlock uint32
	MaxLength             uint32
	MaxVotesPerVoter      uint32
}

// Defaults applied when a constant cannot be fetched from chain, taken
// from the documented fallbacks in the source tool's
// fetch_miner_constants.
const (
	DefaultMaxWinnersPerPage      = 256
	DefaultMaxBackersPerWinner    = ^uint32(0)
	DefaultVoterSnapshotPerBlock  = 100
	DefaultTargetSnapshotPerBlock = 100
	DefaultMaxLength              = 22500
	DefaultMaxVotesPerVoter       = 16
)

var (
	once      sync.Once
	stored    atomic.Pointer[Constants]

	balancingIterations atomic.Int64
)

// Set installs the process-wide runtime constants. It may be called
// exactly once; subsequent calls are no-ops, matching the source tool's
// "set once at startup" contract.
func Set(c Constants) {
	once.Do(func() {
		stored.Store(&c)
	})
}

// Get returns the process-wide runtime constants, failing with
// KindConfig if Set was never called.
func Get() (Constants, error) {
	p := stored.Load()
	if p == nil {
		return Constants{}, apperr.Config("runtime constants not set - call runtimeconfig.Set first")
	}
	return *p, nil
}

// SetBalancingIterations records the balancing pass count requested for
// this run (0 disables balancing). Unlike the rest of Constants this may
// change between invocations within a single process, so it lives in its
// own atomic cell rather than inside the once-set Constants value.
func SetBalancingIterations(n int) { balancingIterations.Store(int64(n)) }

// BalancingIterations returns the currently configured balancing pass
// count.
func BalancingIterations() int { return int(balancingIterations.Load()) }

// WithDefaults fills any zero field of c with the documented fallback,
// mirroring fetch_miner_constants's per-field `.unwrap_or(default)`
// chain. Pages is never defaulted: a zero Pages is a configuration error.
func WithDefaults(c Constants) (Constants, error) {
	if c.Pages == 0 {
		return Constants{}, apperr.Config("MultiBlockElection.Pages must be fetched from chain, no default exists")
	}
	if c.MaxWinnersPerPage == 0 {
		c.MaxWinnersPerPage = DefaultMaxWinnersPerPage
	}
	if c.MaxBackersPerWinner == 0 {
		c.MaxBackersPerWinner = DefaultMaxBackersPerWinner
	}
	if c.VoterSnapshotPerBlock == 0 {
		c.VoterSnapshotPerBlock = DefaultVoterSnapshotPerBlock
	}
	if c.TargetSnapshotPerBlock == 0 {
		c.TargetSnapshotPerBlock = DefaultTargetSnapshotPerBlock
	}
	if c.MaxLength == 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MaxVotesPerVoter == 0 {
		c.MaxVotesPerVoter = DefaultMaxVotesPerVoter
	}
	return c, nil
}
