// Package model defines the core NPOS election data model: voters,
// targets, paged snapshots, staking configuration and solver output.
// Grounded on original_source/src/models.rs (Chain/Algorithm/Validator/
// StakingConfig/Snapshot) and multi_block_state_client.rs (Phase,
// BlockDetails, the Voter/BoundedVec page aliases).
package model

import (
	"math/big"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/bounded"
)

// Balance is a 128-bit unsigned token amount, represented as a *big.Int
// the way the teacher's `staking` package carries amounts (its
// `*big.Int`-based reward/stake arithmetic in reward.go/state.go), since
// Go has no native u128.
type Balance = *big.Int

// VoteWeight is a normalized per-nomination stake weight, matching
// sp_npos_elections::VoteWeight (a plain u64 in the source tool).
type VoteWeight = uint64

// Voter is one nominator's ballot: the stash casting it, its total
// stake, and the ordered list of targets it approves.
type Voter struct {
	Who    account.ID
	Stake  VoteWeight
	Target []account.ID
}

// Target is a nomination target (validator) identified by stash.
type Target = account.ID

// VoterPage is one VoterSnapshotPerBlock-capped page of voters.
type VoterPage = bounded.List[Voter]

// TargetPage is the single TargetSnapshotPerBlock-capped page of targets.
type TargetPage = bounded.List[Target]

// PagedSnapshot is the full paged election snapshot: one voter page per
// round page plus the single target page, matching
// `ElectionSnapshotPage<MC>{voters, targets}`.
type PagedSnapshot struct {
	Voters  []VoterPage
	Targets TargetPage
}

// Phase mirrors pallet_election_provider_multi_block's CurrentPhase
// storage item.
type Phase struct {
	Tag   PhaseTag
	Inner uint32 // meaningful for Signed/SignedValidation/Unsigned/Snapshot/Export
}

// PhaseTag identifies which Phase variant is active.
type PhaseTag uint8

const (
	PhaseOff PhaseTag = iota
	PhaseSigned
	PhaseSignedValidation
	PhaseUnsigned
	PhaseSnapshot
	PhaseDone
	PhaseExport
	PhaseEmergency
)

// HasSnapshot reports whether PagedVoterSnapshot/PagedTargetSnapshot
// storage items are expected to be fully populated in this phase,
// reproducing the exact variant table in the source tool's
// `Phase::has_snapshot`.
func (p Phase) HasSnapshot() bool {
	switch p.Tag {
	case PhaseSnapshot:
		return p.Inner == 0
	case PhaseDone, PhaseSigned, PhaseSignedValidation, PhaseUnsigned, PhaseExport:
		return true
	default:
		return false
	}
}

// BlockDetails carries the per-block metadata the snapshot reconstructor
// needs before it can read or synthesize voter/target pages.
type BlockDetails struct {
	Phase          Phase
	NPages         uint32
	Round          uint32
	DesiredTargets uint32
	BlockNumber    uint32
	BlockHash      []byte
}

// StakingConfig carries the bond thresholds and self-vote policy applied
// during filtering and synthesis.
type StakingConfig struct {
	DesiredValidators uint32
	MaxNominations    uint32
	MinNominatorBond  Balance
	MinValidatorBond  Balance
	// SelfVote controls whether a validator's own stash is folded into
	// its own nomination list when synthesizing voters from
	// Staking.Validators/Staking.Nominators (Open Question #2, resolved
	// in DESIGN.md: retained, default true).
	SelfVote bool
}

// Nomination is one nominator's contribution to a winning validator's
// support, used for the decorated per-validator output.
type Nomination struct {
	Nominator account.ID
	Stake     Balance
}

// Validator is a fully decorated election winner.
type Validator struct {
	Stash            account.ID
	SelfStake        Balance
	TotalStake       Balance
	Commission       float64
	Blocked          bool
	NominationsCount int
	Nominations      []Nomination
}

// SnapshotValidator is one target entry in a reconstructed snapshot.
type SnapshotValidator struct {
	Stash      account.ID
	Commission float64
	Blocked    bool
}

// SnapshotNominator is one voter entry in a reconstructed snapshot.
type SnapshotNominator struct {
	Stash       account.ID
	Stake       Balance
	Nominations []account.ID
}

// Snapshot is the human-facing (unpaged, decoded) view of a paged
// election snapshot, returned by the `snapshot` CLI/HTTP surface.
type Snapshot struct {
	Validators []SnapshotValidator
	Nominators []SnapshotNominator
	Config     StakingConfig
}

// Support is one winner's aggregated backing: its total stake and the
// per-nominator breakdown, matching sp_npos_elections::Support.
type Support struct {
	Total   Balance
	Backers []Nomination
}

// SimulationResult is the full output of a `simulate` run: the winning
// validator set plus the round metadata it was computed against.
type SimulationResult struct {
	Round      uint32
	Winners    []Validator
	Iterations int
}
