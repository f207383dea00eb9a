package snapshot

import (
	"context"
	"math/big"
	"sort"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/bounded"
	"github.com/tos-network/electsim/model"
	"github.com/tos-network/electsim/runtimeconfig"
	"github.com/tos-network/electsim/storage"
	"github.com/tos-network/electsim/xlog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentReads bounds the fan-out used when reading independent
// per-account storage items (validator prefs, nominations, ledgers),
// matching the source tool's `join_all` over a bounded candidate/voter
// set but capping in-flight requests the way a real node's RPC rate
// limit requires - `join_all` has no such cap, so this is a deliberate,
// documented tightening for a Go client talking to a shared public
// endpoint.
const maxConcurrentReads = 16

// Builder reconstructs paged election snapshots from a Backend.
type Builder struct {
	backend storage.Backend
}

// NewBuilder wraps backend for snapshot reconstruction.
func NewBuilder(backend storage.Backend) *Builder {
	return &Builder{backend: backend}
}

// BlockDetails reads the per-block metadata the reconstructor needs
// before it can fetch or synthesize voter/target pages, mirroring
// `MultiBlockClient::get_block_details`.
func (b *Builder) BlockDetails(ctx context.Context, at storage.BlockHash) (model.BlockDetails, error) {
	phaseRaw, err := b.backend.ReadStorage(ctx, storage.ValueKey("MultiBlockElection", "CurrentPhase"), at)
	if err != nil {
		return model.BlockDetails{}, err
	}
	var phase model.Phase
	if phaseRaw != nil {
		phase, err = decodePhase(phaseRaw)
		if err != nil {
			return model.BlockDetails{}, err
		}
	}

	roundRaw, err := b.backend.ReadStorage(ctx, storage.ValueKey("MultiBlockElection", "Round"), at)
	if err != nil {
		return model.BlockDetails{}, err
	}
	var round uint32
	if roundRaw != nil {
		round, err = decodeU32(roundRaw)
		if err != nil {
			return model.BlockDetails{}, err
		}
	}

	desiredRaw, err := b.backend.ReadStorage(ctx, storage.MapKey("MultiBlockElection", "DesiredTargets", encodeU32(round)), at)
	if err != nil {
		return model.BlockDetails{}, err
	}
	desired := uint32(600) // documented fallback, matching `.unwrap_or(600)`
	if desiredRaw != nil {
		desired, err = decodeU32(desiredRaw)
		if err != nil {
			return model.BlockDetails{}, err
		}
	}

	blockNumRaw, err := b.backend.ReadStorage(ctx, storage.ValueKey("System", "Number"), at)
	if err != nil {
		return model.BlockDetails{}, err
	}
	if blockNumRaw == nil {
		return model.BlockDetails{}, apperr.NotFound("System.Number not found")
	}
	blockNum, err := decodeU32(blockNumRaw)
	if err != nil {
		return model.BlockDetails{}, err
	}

	constants, err := runtimeconfig.Get()
	if err != nil {
		return model.BlockDetails{}, err
	}

	return model.BlockDetails{
		Phase:          phase,
		NPages:         constants.Pages,
		Round:          round,
		DesiredTargets: desired,
		BlockNumber:    blockNum,
		BlockHash:      at,
	}, nil
}

// StakingConfig reads the staking bond thresholds applied while
// filtering voters/validators, mirroring
// `get_staking_config_from_multi_block`.
func (b *Builder) StakingConfig(ctx context.Context, details model.BlockDetails, selfVote bool) (model.StakingConfig, error) {
	minNom, err := b.readBalanceOrZero(ctx, storage.ValueKey("Staking", "MinNominatorBond"), details.BlockHash)
	if err != nil {
		return model.StakingConfig{}, err
	}
	minVal, err := b.readBalanceOrZero(ctx, storage.ValueKey("Staking", "MinValidatorBond"), details.BlockHash)
	if err != nil {
		return model.StakingConfig{}, err
	}
	constants, err := runtimeconfig.Get()
	if err != nil {
		return model.StakingConfig{}, err
	}
	return model.StakingConfig{
		DesiredValidators: details.DesiredTargets,
		MaxNominations:    constants.MaxVotesPerVoter,
		MinNominatorBond:  minNom,
		MinValidatorBond:  minVal,
		SelfVote:          selfVote,
	}, nil
}

func (b *Builder) readBalanceOrZero(ctx context.Context, key []byte, at storage.BlockHash) (*big.Int, error) {
	raw, err := b.backend.ReadStorage(ctx, key, at)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return big.NewInt(0), nil
	}
	return decodeU128(raw)
}

// Build reconstructs the full paged snapshot for details, reading the
// native `PagedVoterSnapshot`/`PagedTargetSnapshot` items when
// `details.Phase.HasSnapshot()`, and otherwise synthesizing the same
// shape from raw staking storage.
func (b *Builder) Build(ctx context.Context, details model.BlockDetails, cfg model.StakingConfig) (model.PagedSnapshot, error) {
	if details.Phase.HasSnapshot() {
		return b.buildNative(ctx, details)
	}
	xlog.Info("snapshot: no paged snapshot available, synthesizing from staking storage", "round", details.Round)
	return b.buildSynthesis(ctx, details, cfg)
}

func (b *Builder) buildNative(ctx context.Context, details model.BlockDetails) (model.PagedSnapshot, error) {
	constants, err := runtimeconfig.Get()
	if err != nil {
		return model.PagedSnapshot{}, err
	}

	pages := make([]model.VoterPage, details.NPages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for page := uint32(0); page < details.NPages; page++ {
		page := page
		g.Go(func() error {
			key := storage.DoubleMapKey("MultiBlockElection", "PagedVoterSnapshot", encodeU32(details.Round), encodeU32(page))
			raw, err := b.backend.ReadStorage(gctx, key, details.BlockHash)
			if err != nil {
				return err
			}
			if raw == nil {
				return apperr.NotFound("PagedVoterSnapshot not found for round %d page %d", details.Round, page)
			}
			voterPage, err := decodeVoterPage(raw, int(constants.VoterSnapshotPerBlock))
			if err != nil {
				return err
			}
			pages[page] = voterPage
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.PagedSnapshot{}, err
	}

	lastPage := details.NPages - 1
	targetKey := storage.DoubleMapKey("MultiBlockElection", "PagedTargetSnapshot", encodeU32(details.Round), encodeU32(lastPage))
	targetRaw, err := b.backend.ReadStorage(ctx, targetKey, details.BlockHash)
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	if targetRaw == nil {
		return model.PagedSnapshot{}, apperr.NotFound("PagedTargetSnapshot not found for round %d page %d", details.Round, lastPage)
	}
	targets, err := decodeTargetPage(targetRaw, int(constants.TargetSnapshotPerBlock))
	if err != nil {
		return model.PagedSnapshot{}, err
	}

	return model.PagedSnapshot{Voters: pages, Targets: targets}, nil
}

func (b *Builder) buildSynthesis(ctx context.Context, details model.BlockDetails, cfg model.StakingConfig) (model.PagedSnapshot, error) {
	constants, err := runtimeconfig.Get()
	if err != nil {
		return model.PagedSnapshot{}, err
	}

	nominatorKeys, err := b.enumerateMapKeys(ctx, "Staking", "Nominators", details.BlockHash)
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	validatorKeys, err := b.enumerateMapKeys(ctx, "Staking", "Validators", details.BlockHash)
	if err != nil {
		return model.PagedSnapshot{}, err
	}

	var voters []model.Voter
	var voterMu voterAccumulator

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	for _, nomKey := range nominatorKeys {
		nomKey := nomKey
		g.Go(func() error {
			v, ok, err := b.resolveNominatorVoter(gctx, nomKey, details, cfg, int(constants.MaxVotesPerVoter))
			if err != nil {
				return err
			}
			if ok {
				voterMu.add(v)
			}
			return nil
		})
	}

	var targets []account.ID
	var targetMu idAccumulator

	for _, valKey := range validatorKeys {
		valKey := valKey
		g.Go(func() error {
			stash, err := accountFromMapKey(valKey)
			if err != nil {
				return err
			}
			ledger, hasLedger, err := b.resolveLedgerForStash(gctx, stash, details.BlockHash)
			if err != nil {
				return err
			}
			if hasLedger && ledger.Active.Cmp(cfg.MinValidatorBond) >= 0 {
				targetMu.add(stash)
			}
			if cfg.SelfVote && hasLedger && ledger.Active.Cmp(cfg.MinNominatorBond) >= 0 {
				voterMu.add(model.Voter{Who: stash, Stake: ledger.Active.Uint64(), Target: []account.ID{stash}})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return model.PagedSnapshot{}, err
	}

	voters = voterMu.items
	targets = targetMu.items

	sort.Slice(voters, func(i, j int) bool { return compareIDs(voters[i].Who, voters[j].Who) < 0 })
	sort.Slice(targets, func(i, j int) bool { return compareIDs(targets[i], targets[j]) < 0 })

	voterPages, err := bounded.Chunk(voters, int(constants.VoterSnapshotPerBlock), int(details.NPages))
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	targetPage, err := bounded.From(targets, int(constants.TargetSnapshotPerBlock))
	if err != nil {
		return model.PagedSnapshot{}, err
	}

	return model.PagedSnapshot{Voters: voterPages, Targets: targetPage}, nil
}

// resolveNominatorVoter applies the same chain of lookups as the source
// tool's nominator_futures closure: decode the nomination, skip if
// suppressed, resolve the controller via Staking.Bonded, resolve the
// active stake via Staking.Ledger, skip if below min_nominator_bond, and
// truncate targets to max_nominations.
func (b *Builder) resolveNominatorVoter(ctx context.Context, nomKey []byte, details model.BlockDetails, cfg model.StakingConfig, maxVotes int) (model.Voter, bool, error) {
	raw, err := b.backend.ReadStorage(ctx, nomKey, details.BlockHash)
	if err != nil || raw == nil {
		return model.Voter{}, false, err
	}
	noms, err := decodeNominations(raw)
	if err != nil {
		return model.Voter{}, false, err
	}
	if noms.Suppressed {
		return model.Voter{}, false, nil
	}
	stash, err := accountFromMapKey(nomKey)
	if err != nil {
		return model.Voter{}, false, err
	}
	ledger, ok, err := b.resolveLedgerForStash(ctx, stash, details.BlockHash)
	if err != nil {
		return model.Voter{}, false, err
	}
	if !ok || ledger.Active.Cmp(cfg.MinNominatorBond) < 0 {
		return model.Voter{}, false, nil
	}
	targets := noms.Targets
	if len(targets) > maxVotes {
		targets = targets[:maxVotes]
	}
	return model.Voter{Who: stash, Stake: ledger.Active.Uint64(), Target: targets}, true, nil
}

// resolveLedgerForStash follows Staking.Bonded(stash) -> controller,
// then Staking.Ledger(controller) -> active balance.
func (b *Builder) resolveLedgerForStash(ctx context.Context, stash account.ID, at storage.BlockHash) (stakingLedger, bool, error) {
	bondedRaw, err := b.backend.ReadStorage(ctx, storage.MapKey("Staking", "Bonded", stash[:]), at)
	if err != nil || bondedRaw == nil {
		return stakingLedger{}, false, err
	}
	controller, err := decodeAccountID(bondedRaw)
	if err != nil {
		return stakingLedger{}, false, err
	}
	ledgerRaw, err := b.backend.ReadStorage(ctx, storage.MapKey("Staking", "Ledger", controller[:]), at)
	if err != nil || ledgerRaw == nil {
		return stakingLedger{}, false, err
	}
	ledger, err := decodeStakingLedger(ledgerRaw)
	if err != nil {
		return stakingLedger{}, false, err
	}
	return ledger, true, nil
}

func (b *Builder) enumerateMapKeys(ctx context.Context, pallet, item string, at storage.BlockHash) ([][]byte, error) {
	prefix := storage.ValueKey(pallet, item)
	var all [][]byte
	var cursor []byte
	const pageSize = 1000
	for {
		keys, err := b.backend.StorageKeysPaged(ctx, prefix, pageSize, cursor, at)
		if err != nil {
			return nil, err
		}
		all = append(all, keys...)
		if len(keys) < pageSize {
			break
		}
		cursor = keys[len(keys)-1]
	}
	return all, nil
}

// ValidatorPrefsAt reads and decodes a single validator's preferences,
// used by the decoration stage to attach commission/blocked to winners.
func (b *Builder) ValidatorPrefsAt(ctx context.Context, stash account.ID, at storage.BlockHash) (commission float64, blocked bool, err error) {
	raw, err := b.backend.ReadStorage(ctx, storage.MapKey("Staking", "Validators", stash[:]), at)
	if err != nil {
		return 0, false, err
	}
	if raw == nil {
		return 0, false, apperr.NotFound("ValidatorPrefs not found")
	}
	prefs, err := decodeValidatorPrefs(raw)
	if err != nil {
		return 0, false, err
	}
	return commissionToFraction(prefs.Commission), prefs.Blocked, nil
}

func accountFromMapKey(key []byte) (account.ID, error) {
	if len(key) < 32 {
		return account.ID{}, apperr.Decode(nil, "map key too short to contain an account id")
	}
	return decodeAccountID(key[len(key)-32:])
}

func compareIDs(a, b account.ID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
