package snapshot

import (
	"context"
	"testing"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/model"
	"github.com/tos-network/electsim/runtimeconfig"
	"github.com/tos-network/electsim/scalecodec"
	"github.com/tos-network/electsim/storage"
)

func init() {
	runtimeconfig.Set(runtimeconfig.Constants{
		Pages:                  2,
		MaxWinnersPerPage:      100,
		MaxBackersPerWinner:    100,
		VoterSnapshotPerBlock:  3,
		TargetSnapshotPerBlock: 50,
		MaxLength:              22500,
		MaxVotesPerVoter:       16,
	})
}

func id(b byte) account.ID {
	var a account.ID
	a[31] = b
	return a
}

func encodePhase(tag model.PhaseTag, inner uint32) []byte {
	e := scalecodec.NewEncoder()
	variant := map[model.PhaseTag]uint8{
		model.PhaseOff:               0,
		model.PhaseSigned:            1,
		model.PhaseSignedValidation:  2,
		model.PhaseUnsigned:          3,
		model.PhaseSnapshot:          4,
		model.PhaseDone:              5,
		model.PhaseExport:            6,
		model.PhaseEmergency:         7,
	}[tag]
	e.PutRaw([]byte{variant})
	switch tag {
	case model.PhaseSigned, model.PhaseSignedValidation, model.PhaseUnsigned, model.PhaseSnapshot, model.PhaseExport:
		e.PutUint32(inner)
	}
	return e.Bytes()
}

func encodeNominations(targets []account.ID, suppressed bool) []byte {
	e := scalecodec.NewEncoder()
	e.PutCompactUint(uint64(len(targets)))
	for _, t := range targets {
		e.PutRaw(t[:])
	}
	e.PutUint32(0) // submitted_in
	if suppressed {
		e.PutRaw([]byte{1})
	} else {
		e.PutRaw([]byte{0})
	}
	return e.Bytes()
}

func encodeStakingLedger(stash account.ID, total, active uint64) []byte {
	e := scalecodec.NewEncoder()
	e.PutRaw(stash[:])
	e.PutCompactUint(total)
	e.PutCompactUint(active)
	return e.Bytes()
}

func encodeValidatorPrefs(commissionPPB uint32, blocked bool) []byte {
	e := scalecodec.NewEncoder()
	e.PutUint32(commissionPPB)
	if blocked {
		e.PutRaw([]byte{1})
	} else {
		e.PutRaw([]byte{0})
	}
	return e.Bytes()
}

func encodeVoterPage(voters []model.Voter) []byte {
	e := scalecodec.NewEncoder()
	e.PutCompactUint(uint64(len(voters)))
	for _, v := range voters {
		e.PutRaw(v.Who[:])
		var stakeBuf [8]byte
		for i := 0; i < 8; i++ {
			stakeBuf[i] = byte(v.Stake >> (8 * i))
		}
		e.PutRaw(stakeBuf[:])
		e.PutCompactUint(uint64(len(v.Target)))
		for _, t := range v.Target {
			e.PutRaw(t[:])
		}
	}
	return e.Bytes()
}

func encodeTargetPage(targets []account.ID) []byte {
	e := scalecodec.NewEncoder()
	e.PutCompactUint(uint64(len(targets)))
	for _, t := range targets {
		e.PutRaw(t[:])
	}
	return e.Bytes()
}

func u32(v uint32) []byte { return encodeU32(v) }

func TestBuildNativeSnapshotReadsPagedItems(t *testing.T) {
	backend := storage.NewMockBackend()
	round := uint32(7)

	backend.Storage[string(storage.ValueKey("MultiBlockElection", "CurrentPhase"))] = encodePhase(model.PhaseDone, 0)
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "Round"))] = u32(round)
	backend.Storage[string(storage.MapKey("MultiBlockElection", "DesiredTargets", u32(round)))] = u32(2)
	backend.Storage[string(storage.ValueKey("System", "Number"))] = u32(1000)

	page0 := []model.Voter{{Who: id(1), Stake: 10, Target: []account.ID{id(1)}}}
	page1 := []model.Voter{{Who: id(2), Stake: 20, Target: []account.ID{id(2)}}}
	backend.Storage[string(storage.DoubleMapKey("MultiBlockElection", "PagedVoterSnapshot", u32(round), u32(0)))] = encodeVoterPage(page0)
	backend.Storage[string(storage.DoubleMapKey("MultiBlockElection", "PagedVoterSnapshot", u32(round), u32(1)))] = encodeVoterPage(page1)
	backend.Storage[string(storage.DoubleMapKey("MultiBlockElection", "PagedTargetSnapshot", u32(round), u32(1)))] = encodeTargetPage([]account.ID{id(1), id(2)})

	b := NewBuilder(backend)
	details, err := b.BlockDetails(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !details.Phase.HasSnapshot() {
		t.Fatalf("expected Done phase to report HasSnapshot true")
	}
	if details.Round != round {
		t.Fatalf("round = %d, want %d", details.Round, round)
	}

	cfg, err := b.StakingConfig(context.Background(), details, true)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := b.Build(context.Background(), details, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Voters) != 2 {
		t.Fatalf("expected 2 voter pages, got %d", len(snap.Voters))
	}
	if snap.Voters[0].Len() != 1 || snap.Voters[0].Items()[0].Who != id(1) {
		t.Fatalf("page 0 mismatch: %+v", snap.Voters[0].Items())
	}
	if snap.Targets.Len() != 2 {
		t.Fatalf("expected 2 targets, got %d", snap.Targets.Len())
	}
}

func TestBlockDetailsFallsBackToDefaultDesiredTargetsWhenMissing(t *testing.T) {
	backend := storage.NewMockBackend()
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "CurrentPhase"))] = encodePhase(model.PhaseOff, 0)
	backend.Storage[string(storage.ValueKey("System", "Number"))] = u32(1)

	b := NewBuilder(backend)
	details, err := b.BlockDetails(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if details.DesiredTargets != 600 {
		t.Fatalf("expected documented fallback of 600, got %d", details.DesiredTargets)
	}
	if details.Phase.HasSnapshot() {
		t.Fatalf("Off phase must not report HasSnapshot")
	}
}

func TestBuildSynthesizesFromStakingStorageWhenNoSnapshot(t *testing.T) {
	backend := storage.NewMockBackend()
	round := uint32(3)

	backend.Storage[string(storage.ValueKey("MultiBlockElection", "CurrentPhase"))] = encodePhase(model.PhaseSnapshot, 1)
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "Round"))] = u32(round)
	backend.Storage[string(storage.ValueKey("System", "Number"))] = u32(500)
	backend.Storage[string(storage.ValueKey("Staking", "MinNominatorBond"))] = encodeBalance(1)
	backend.Storage[string(storage.ValueKey("Staking", "MinValidatorBond"))] = encodeBalance(1)

	validatorStash := id(1)
	nominatorStash := id(2)
	suppressedNominatorStash := id(3)

	validatorKey := storage.MapKey("Staking", "Validators", validatorStash[:])
	backend.Storage[string(validatorKey)] = encodeValidatorPrefs(50_000_000, false)
	backend.Keys[string(storage.ValueKey("Staking", "Validators"))] = [][]byte{validatorKey}

	nominatorKey := storage.MapKey("Staking", "Nominators", nominatorStash[:])
	backend.Storage[string(nominatorKey)] = encodeNominations([]account.ID{validatorStash}, false)
	suppressedKey := storage.MapKey("Staking", "Nominators", suppressedNominatorStash[:])
	backend.Storage[string(suppressedKey)] = encodeNominations([]account.ID{validatorStash}, true)
	backend.Keys[string(storage.ValueKey("Staking", "Nominators"))] = [][]byte{nominatorKey, suppressedKey}

	backend.Storage[string(storage.MapKey("Staking", "Bonded", validatorStash[:]))] = validatorStash[:]
	backend.Storage[string(storage.MapKey("Staking", "Ledger", validatorStash[:]))] = encodeStakingLedger(validatorStash, 1000, 1000)

	backend.Storage[string(storage.MapKey("Staking", "Bonded", nominatorStash[:]))] = nominatorStash[:]
	backend.Storage[string(storage.MapKey("Staking", "Ledger", nominatorStash[:]))] = encodeStakingLedger(nominatorStash, 500, 500)

	backend.Storage[string(storage.MapKey("Staking", "Bonded", suppressedNominatorStash[:]))] = suppressedNominatorStash[:]
	backend.Storage[string(storage.MapKey("Staking", "Ledger", suppressedNominatorStash[:]))] = encodeStakingLedger(suppressedNominatorStash, 500, 500)

	b := NewBuilder(backend)
	details, err := b.BlockDetails(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if details.Phase.HasSnapshot() {
		t.Fatalf("Snapshot(1) must not report HasSnapshot (only Snapshot(0) does)")
	}

	cfg, err := b.StakingConfig(context.Background(), details, true)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := b.Build(context.Background(), details, cfg)
	if err != nil {
		t.Fatal(err)
	}

	var allVoters []model.Voter
	for _, page := range snap.Voters {
		allVoters = append(allVoters, page.Items()...)
	}

	foundNominator := false
	foundSelfVote := false
	for _, v := range allVoters {
		if v.Who == suppressedNominatorStash {
			t.Fatalf("suppressed nomination must be excluded from synthesis")
		}
		if v.Who == nominatorStash {
			foundNominator = true
		}
		if v.Who == validatorStash {
			foundSelfVote = true
		}
	}
	if !foundNominator {
		t.Fatalf("expected nominator voter to be present, got %+v", allVoters)
	}
	if !foundSelfVote {
		t.Fatalf("expected self-vote to be synthesized for validator (SelfVote=true), got %+v", allVoters)
	}

	if snap.Targets.Len() != 1 || snap.Targets.Items()[0] != validatorStash {
		t.Fatalf("expected single target %v, got %+v", validatorStash, snap.Targets.Items())
	}
}

func TestBuildSynthesisOmitsSelfVoteWhenDisabled(t *testing.T) {
	backend := storage.NewMockBackend()
	round := uint32(1)
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "CurrentPhase"))] = encodePhase(model.PhaseOff, 0)
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "Round"))] = u32(round)
	backend.Storage[string(storage.ValueKey("System", "Number"))] = u32(1)
	backend.Storage[string(storage.ValueKey("Staking", "MinNominatorBond"))] = encodeBalance(1)
	backend.Storage[string(storage.ValueKey("Staking", "MinValidatorBond"))] = encodeBalance(1)

	validatorStash := id(9)
	validatorKey := storage.MapKey("Staking", "Validators", validatorStash[:])
	backend.Storage[string(validatorKey)] = encodeValidatorPrefs(0, false)
	backend.Keys[string(storage.ValueKey("Staking", "Validators"))] = [][]byte{validatorKey}
	backend.Storage[string(storage.MapKey("Staking", "Bonded", validatorStash[:]))] = validatorStash[:]
	backend.Storage[string(storage.MapKey("Staking", "Ledger", validatorStash[:]))] = encodeStakingLedger(validatorStash, 1000, 1000)

	b := NewBuilder(backend)
	details, err := b.BlockDetails(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := b.StakingConfig(context.Background(), details, false)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := b.Build(context.Background(), details, cfg)
	if err != nil {
		t.Fatal(err)
	}
	totalVoters := 0
	for _, page := range snap.Voters {
		totalVoters += page.Len()
		for _, v := range page.Items() {
			if v.Who == validatorStash {
				t.Fatalf("self-vote must not be synthesized when SelfVote=false")
			}
		}
	}
	if totalVoters != 0 {
		t.Fatalf("expected zero voters with no nominators and SelfVote=false, got %d", totalVoters)
	}
}

func encodeBalance(v uint64) []byte {
	// Uint128 decoding expects 16 little-endian wire bytes and reverses
	// them internally before handing off to big.Int.SetBytes.
	var le [16]byte
	for i := 0; i < 8; i++ {
		le[i] = byte(v >> (8 * i))
	}
	return le[:]
}

func TestValidatorPrefsAtDecodesCommissionAndBlocked(t *testing.T) {
	backend := storage.NewMockBackend()
	stash := id(4)
	backend.Storage[string(storage.MapKey("Staking", "Validators", stash[:]))] = encodeValidatorPrefs(100_000_000, true)

	b := NewBuilder(backend)
	commission, blocked, err := b.ValidatorPrefsAt(context.Background(), stash, nil)
	if err != nil {
		t.Fatal(err)
	}
	if commission != 0.1 {
		t.Fatalf("commission = %v, want 0.1", commission)
	}
	if !blocked {
		t.Fatalf("expected blocked=true")
	}
}
