// Package snapshot reconstructs a paged NPOS election snapshot from a
// chain's storage, either by reading the `PagedVoterSnapshot`/
// `PagedTargetSnapshot` items directly (the "native" path, available
// once `Phase::has_snapshot()` is true) or by synthesizing the same
// shape from `Staking.Validators`/`Staking.Nominators`/`Staking.Bonded`/
// `Staking.Ledger` (the "synthesis" path, used before or without
// paging). Grounded on original_source/src/snapshot.rs's
// `get_snapshot_data_from_multi_block`.
package snapshot

import (
	"math/big"
	"sync"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/bounded"
	"github.com/tos-network/electsim/model"
	"github.com/tos-network/electsim/scalecodec"
)

// validatorPrefs is the subset of pallet_staking::ValidatorPrefs this
// tool needs: commission (a Perbill in parts per billion, decoded as a
// fixed-width little-endian u32, not a compact integer) and the blocked
// flag.
type validatorPrefs struct {
	Commission uint32 // parts per billion
	Blocked    bool
}

func decodeValidatorPrefs(raw []byte) (validatorPrefs, error) {
	d := scalecodec.NewDecoder(raw)
	commission, err := d.Uint32()
	if err != nil {
		return validatorPrefs{}, apperr.Decode(err, "decode ValidatorPrefs.commission")
	}
	blocked, err := d.Bool()
	if err != nil {
		return validatorPrefs{}, apperr.Decode(err, "decode ValidatorPrefs.blocked")
	}
	return validatorPrefs{Commission: commission, Blocked: blocked}, nil
}

// nominations is the subset of NominationsLight this tool needs: the
// approved targets and the suppressed flag (a suppressed nomination is
// skipped entirely, matching the source tool's `.filter(|n|
// !n.suppressed)`).
type nominations struct {
	Targets     []account.ID
	Suppressed  bool
}

func decodeNominations(raw []byte) (nominations, error) {
	d := scalecodec.NewDecoder(raw)
	n, err := d.VecLen()
	if err != nil {
		return nominations{}, apperr.Decode(err, "decode Nominations.targets length")
	}
	targets := make([]account.ID, 0, n)
	for i := 0; i < n; i++ {
		b, err := d.Bytes(32)
		if err != nil {
			return nominations{}, apperr.Decode(err, "decode Nominations.targets[%d]", i)
		}
		var id account.ID
		copy(id[:], b)
		targets = append(targets, id)
	}
	// submitted_in: EraIndex (u32), skipped.
	if _, err := d.Uint32(); err != nil {
		return nominations{}, apperr.Decode(err, "decode Nominations.submitted_in")
	}
	suppressed, err := d.Bool()
	if err != nil {
		return nominations{}, apperr.Decode(err, "decode Nominations.suppressed")
	}
	return nominations{Targets: targets, Suppressed: suppressed}, nil
}

// stakingLedger is the subset of StakingLedger this tool needs: the
// active (bonded, non-unlocking) balance.
type stakingLedger struct {
	Active *big.Int
}

func decodeStakingLedger(raw []byte) (stakingLedger, error) {
	d := scalecodec.NewDecoder(raw)
	if _, err := d.Bytes(32); err != nil { // stash
		return stakingLedger{}, apperr.Decode(err, "decode StakingLedger.stash")
	}
	if _, err := d.CompactUint(); err != nil { // total
		return stakingLedger{}, apperr.Decode(err, "decode StakingLedger.total")
	}
	active, err := d.CompactUint()
	if err != nil {
		return stakingLedger{}, apperr.Decode(err, "decode StakingLedger.active")
	}
	return stakingLedger{Active: new(big.Int).SetUint64(active)}, nil
}

func decodeAccountID(raw []byte) (account.ID, error) {
	if len(raw) < 32 {
		return account.ID{}, apperr.Decode(nil, "account id payload too short: %d bytes", len(raw))
	}
	var id account.ID
	copy(id[:], raw[:32])
	return id, nil
}

func decodeU32(raw []byte) (uint32, error) {
	d := scalecodec.NewDecoder(raw)
	v, err := d.Uint32()
	if err != nil {
		return 0, apperr.Decode(err, "decode u32")
	}
	return v, nil
}

func decodeU128(raw []byte) (*big.Int, error) {
	d := scalecodec.NewDecoder(raw)
	b, err := d.Uint128()
	if err != nil {
		return nil, apperr.Decode(err, "decode u128")
	}
	return new(big.Int).SetBytes(b[:]), nil
}

// commissionToFraction converts a parts-per-billion Perbill value to the
// float64 fraction the decorated Validator.Commission field carries,
// matching `validator_prefs.commission.deconstruct() as f64 /
// 1_000_000_000.0`.
func commissionToFraction(ppb uint32) float64 {
	return float64(ppb) / 1_000_000_000.0
}

func decodePhase(raw []byte) (model.Phase, error) {
	d := scalecodec.NewDecoder(raw)
	variant, err := d.EnumVariant()
	if err != nil {
		return model.Phase{}, apperr.Decode(err, "decode Phase discriminant")
	}
	switch variant {
	case 0:
		return model.Phase{Tag: model.PhaseOff}, nil
	case 1, 2, 3, 4, 6:
		inner, err := d.Uint32()
		if err != nil {
			return model.Phase{}, apperr.Decode(err, "decode Phase inner value")
		}
		tags := map[uint8]model.PhaseTag{
			1: model.PhaseSigned,
			2: model.PhaseSignedValidation,
			3: model.PhaseUnsigned,
			4: model.PhaseSnapshot,
			6: model.PhaseExport,
		}
		return model.Phase{Tag: tags[variant], Inner: inner}, nil
	case 5:
		return model.Phase{Tag: model.PhaseDone}, nil
	case 7:
		return model.Phase{Tag: model.PhaseEmergency}, nil
	default:
		return model.Phase{}, apperr.Decode(nil, "unknown Phase discriminant %d", variant)
	}
}

// decodeVoterPage decodes a native PagedVoterSnapshot entry: a
// SCALE-encoded Vec<(AccountId, VoteWeight, BoundedVec<AccountId>)>,
// bounded into a model.VoterPage capped at perPage.
func decodeVoterPage(raw []byte, perPage int) (model.VoterPage, error) {
	d := scalecodec.NewDecoder(raw)
	n, err := d.VecLen()
	if err != nil {
		return model.VoterPage{}, apperr.Decode(err, "decode voter page length")
	}
	voters := make([]model.Voter, 0, n)
	for i := 0; i < n; i++ {
		who, err := d.Bytes(32)
		if err != nil {
			return model.VoterPage{}, apperr.Decode(err, "decode voter[%d].who", i)
		}
		var whoID account.ID
		copy(whoID[:], who)

		stake, err := d.Uint64()
		if err != nil {
			return model.VoterPage{}, apperr.Decode(err, "decode voter[%d].stake", i)
		}

		tn, err := d.VecLen()
		if err != nil {
			return model.VoterPage{}, apperr.Decode(err, "decode voter[%d].targets length", i)
		}
		targets := make([]account.ID, 0, tn)
		for j := 0; j < tn; j++ {
			t, err := d.Bytes(32)
			if err != nil {
				return model.VoterPage{}, apperr.Decode(err, "decode voter[%d].targets[%d]", i, j)
			}
			var tid account.ID
			copy(tid[:], t)
			targets = append(targets, tid)
		}
		voters = append(voters, model.Voter{Who: whoID, Stake: stake, Target: targets})
	}
	return bounded.From(voters, perPage)
}

// decodeTargetPage decodes a native PagedTargetSnapshot entry: a
// SCALE-encoded Vec<AccountId>, bounded into a model.TargetPage capped
// at perPage.
func decodeTargetPage(raw []byte, perPage int) (model.TargetPage, error) {
	d := scalecodec.NewDecoder(raw)
	n, err := d.VecLen()
	if err != nil {
		return model.TargetPage{}, apperr.Decode(err, "decode target page length")
	}
	targets := make([]account.ID, 0, n)
	for i := 0; i < n; i++ {
		t, err := d.Bytes(32)
		if err != nil {
			return model.TargetPage{}, apperr.Decode(err, "decode target[%d]", i)
		}
		var tid account.ID
		copy(tid[:], t)
		targets = append(targets, tid)
	}
	return bounded.From(targets, perPage)
}

// voterAccumulator collects voters discovered by concurrent synthesis
// goroutines behind a mutex; the result order doesn't matter since the
// builder sorts by AccountId before paginating.
type voterAccumulator struct {
	mu    sync.Mutex
	items []model.Voter
}

func (a *voterAccumulator) add(v model.Voter) {
	a.mu.Lock()
	a.items = append(a.items, v)
	a.mu.Unlock()
}

// idAccumulator is voterAccumulator's counterpart for account IDs
// (validator targets).
type idAccumulator struct {
	mu    sync.Mutex
	items []account.ID
}

func (a *idAccumulator) add(id account.ID) {
	a.mu.Lock()
	a.items = append(a.items, id)
	a.mu.Unlock()
}
