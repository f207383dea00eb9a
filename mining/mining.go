// Package mining implements the election mining pipeline: bond-based
// filtering, manual override application, solving, paged verification
// and aggregation, reduction, and winner decoration. Grounded on
// original_source/src/simulate.rs's `mine_solution` call sequence
// (filter -> override -> solve -> reduce -> aggregate -> decorate).
package mining

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/bounded"
	"github.com/tos-network/electsim/chainconfig"
	"github.com/tos-network/electsim/model"
	"github.com/tos-network/electsim/scalecodec"
	"github.com/tos-network/electsim/snapshot"
	"github.com/tos-network/electsim/solver"
	"github.com/tos-network/electsim/storage"
	"github.com/tos-network/electsim/xlog"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentDecorations bounds the fan-out used when resolving each
// winner's ValidatorPrefs, mirroring snapshot's maxConcurrentReads cap.
const maxConcurrentDecorations = 16

// OverrideVoter is one manually-added or replaced voter.
type OverrideVoter struct {
	Account string
	Weight  uint64
	Targets []string
}

// Override is the manual-override input spec.md §4.6.2 describes: a
// caller-supplied delta applied to a reconstructed snapshot before
// solving, e.g. to explore "what if X ran and Y didn't" scenarios.
type Override struct {
	VotersAdd        []OverrideVoter
	VotersRemove     []string
	CandidatesAdd    []string
	CandidatesRemove []string
}

// FilterVotersByBond retains only voters whose stake is at least
// threshold, dropping now-empty pages and re-bounding the survivors.
// A nil or non-positive threshold is a no-op, matching §4.6.1's "gated
// on its parameter being strictly positive".
func FilterVotersByBond(snap model.PagedSnapshot, threshold *big.Int, perPage int) (model.PagedSnapshot, error) {
	if threshold == nil || threshold.Sign() <= 0 {
		return snap, nil
	}
	var flat []model.Voter
	for _, page := range snap.Voters {
		for _, v := range page.Items() {
			if new(big.Int).SetUint64(v.Stake).Cmp(threshold) >= 0 {
				flat = append(flat, v)
			}
		}
	}
	pages, err := bounded.Chunk(flat, perPage, len(snap.Voters)+1)
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	return model.PagedSnapshot{Voters: pages, Targets: snap.Targets}, nil
}

// FilterTargetsByBond retains only targets whose resolved ledger.active
// is at least threshold, re-bounding the surviving target page.
func FilterTargetsByBond(ctx context.Context, backend storage.Backend, snap model.PagedSnapshot, threshold *big.Int, at storage.BlockHash) (model.PagedSnapshot, error) {
	if threshold == nil || threshold.Sign() <= 0 {
		return snap, nil
	}
	targets := snap.Targets.Items()
	kept := make([]bool, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDecorations)
	for i, stash := range targets {
		i, stash := i, stash
		g.Go(func() error {
			bondedRaw, err := backend.ReadStorage(gctx, storage.MapKey("Staking", "Bonded", stash[:]), at)
			if err != nil || bondedRaw == nil {
				return err
			}
			var controller account.ID
			copy(controller[:], bondedRaw[:32])
			ledgerRaw, err := backend.ReadStorage(gctx, storage.MapKey("Staking", "Ledger", controller[:]), at)
			if err != nil || ledgerRaw == nil {
				return err
			}
			active, err := decodeLedgerActive(ledgerRaw)
			if err != nil {
				return err
			}
			kept[i] = active.Cmp(threshold) >= 0
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.PagedSnapshot{}, err
	}

	var survivors []account.ID
	for i, k := range kept {
		if k {
			survivors = append(survivors, targets[i])
		}
	}
	page, err := bounded.From(survivors, snap.Targets.Cap())
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	return model.PagedSnapshot{Voters: snap.Voters, Targets: page}, nil
}

// ApplyOverride applies a manual override to snap in the order §4.6.2
// requires: candidate adds, candidate removes, voter add/replace (a
// matching existing account is replaced wholesale), voter removes, then
// repaging at perPage.
func ApplyOverride(snap model.PagedSnapshot, override *Override, perPage int) (model.PagedSnapshot, error) {
	if override == nil {
		return snap, nil
	}

	targets := append([]account.ID(nil), snap.Targets.Items()...)
	for _, add := range override.CandidatesAdd {
		id, _, err := account.Decode(add)
		if err != nil {
			return model.PagedSnapshot{}, apperr.BadRequest("manual override candidate_add %q: %v", add, err)
		}
		if !containsID(targets, id) {
			targets = append(targets, id)
		}
	}
	for _, remove := range override.CandidatesRemove {
		id, _, err := account.Decode(remove)
		if err != nil {
			return model.PagedSnapshot{}, apperr.BadRequest("manual override candidate_remove %q: %v", remove, err)
		}
		targets = removeID(targets, id)
	}

	var flat []model.Voter
	for _, page := range snap.Voters {
		flat = append(flat, page.Items()...)
	}
	for _, add := range override.VotersAdd {
		who, _, err := account.Decode(add.Account)
		if err != nil {
			return model.PagedSnapshot{}, apperr.BadRequest("manual override voter_add %q: %v", add.Account, err)
		}
		targetIDs := make([]account.ID, 0, len(add.Targets))
		for _, t := range add.Targets {
			tid, _, err := account.Decode(t)
			if err != nil {
				return model.PagedSnapshot{}, apperr.BadRequest("manual override voter_add target %q: %v", t, err)
			}
			targetIDs = append(targetIDs, tid)
		}
		replaced := false
		for i, v := range flat {
			if v.Who == who {
				flat[i] = model.Voter{Who: who, Stake: add.Weight, Target: targetIDs}
				replaced = true
				break
			}
		}
		if !replaced {
			flat = append(flat, model.Voter{Who: who, Stake: add.Weight, Target: targetIDs})
		}
	}
	for _, remove := range override.VotersRemove {
		who, _, err := account.Decode(remove)
		if err != nil {
			return model.PagedSnapshot{}, apperr.BadRequest("manual override voter_remove %q: %v", remove, err)
		}
		filtered := flat[:0]
		for _, v := range flat {
			if v.Who != who {
				filtered = append(filtered, v)
			}
		}
		flat = filtered
	}

	dedupedVoters := dedupeMaxStake(flat)

	voterPages, err := bounded.Chunk(dedupedVoters, perPage, len(snap.Voters)+len(override.VotersAdd)+1)
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	targetPage, err := bounded.From(targets, snap.Targets.Cap())
	if err != nil {
		return model.PagedSnapshot{}, err
	}
	return model.PagedSnapshot{Voters: voterPages, Targets: targetPage}, nil
}

// dedupeMaxStake merges duplicate entries for the same account, taking
// the maximum stake and logging a warning, matching §4.6.4's "if it
// occurs under manual override, take the maximum of its per-page stakes
// and log a warning". Construction partitions voters by page, so this
// can only happen after a manual override re-adds an account already
// present elsewhere.
func dedupeMaxStake(voters []model.Voter) []model.Voter {
	seen := make(map[account.ID]int)
	var out []model.Voter
	for _, v := range voters {
		if idx, ok := seen[v.Who]; ok {
			xlog.Warn("mining: duplicate voter after manual override, keeping max stake", "who", fmt.Sprintf("%x", v.Who))
			if v.Stake > out[idx].Stake {
				out[idx] = v
			}
			continue
		}
		seen[v.Who] = len(out)
		out = append(out, v)
	}
	return out
}

func containsID(ids []account.ID, target account.ID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func removeID(ids []account.ID, target account.ID) []account.ID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// Mine runs the full pipeline over an already-filtered/overridden
// snapshot: solve, optional reduction, per-page verification and
// aggregation, and decoration. A snapshot with no targets yields a
// result with no winners, without running the solver. Grounded on simulate.rs's
// `mine_solution`/`feasibility_check` sequence, simplified to apply
// Reduce to the ratio-based assignments before the ratio-to-staked
// conversion rather than after (the staked and ratio representations
// carry the same edge structure, so the reduction is equivalent either
// way; doing it first lets this tool reuse solver.Reduce's existing
// ratio-typed signature instead of a second staked-typed copy).
func Mine(ctx context.Context, builder *snapshot.Builder, snap model.PagedSnapshot, desired int, alg chainconfig.Algorithm, applyReduce bool, balancing *solver.BalancingConfig, round uint32, at storage.BlockHash) (model.SimulationResult, error) {
	var flatVoters []model.Voter
	pageOf := make(map[account.ID]int)
	for pageIdx, page := range snap.Voters {
		for _, v := range page.Items() {
			flatVoters = append(flatVoters, v)
			pageOf[v.Who] = pageIdx
		}
	}
	targets := snap.Targets.Items()

	var s solver.Solver
	switch alg {
	case chainconfig.Phragmms:
		s = solver.PhragMMS()
	default:
		s = solver.SeqPhragmen()
	}

	var result solver.Result
	if len(targets) > 0 {
		var err error
		result, err = s.Solve(desired, targets, flatVoters, balancing)
		if err != nil {
			return model.SimulationResult{}, apperr.Election("solve: %v", err)
		}
	}

	assignments := result.Assignments
	reducedBefore := len(assignments)
	if applyReduce {
		assignments = solver.Reduce(assignments)
		xlog.Info("mining: applied edge reduction", "before", reducedBefore, "after", len(assignments))
	}

	// Per-page verification: split assignments back by the voter's
	// originating page and convert each page independently, mirroring
	// the chain's page-local feasibility check, then merge commutatively.
	perPage := make([][]solver.Assignment, len(snap.Voters))
	for _, a := range assignments {
		p := pageOf[a.Who]
		perPage[p] = append(perPage[p], a)
	}

	globalSupport := make(map[account.ID]model.Support)
	for pageIdx, pageAssignments := range perPage {
		pageVoters := snap.Voters[pageIdx].Items()
		staked := solver.AssignmentRatioToStaked(pageAssignments, pageVoters)
		pageSupport := solver.ToSupportMap(staked)
		mergeSupport(globalSupport, pageSupport)
	}

	winners := append([]account.ID(nil), result.Winners...)
	sort.Slice(winners, func(i, j int) bool { return lessID(winners[i], winners[j]) })

	validators, err := decorate(ctx, builder, winners, globalSupport, at)
	if err != nil {
		return model.SimulationResult{}, err
	}

	iterations := 0
	if balancing != nil {
		iterations = balancing.Iterations
	}
	return model.SimulationResult{Round: round, Winners: validators, Iterations: iterations}, nil
}

// mergeSupport commutatively merges src into dst: totals saturating-add
// (via big.Int, which never overflows) and voter lists concatenate,
// taking the max stake on an impossible-but-handled duplicate.
func mergeSupport(dst map[account.ID]model.Support, src map[account.ID]model.Support) {
	for winner, support := range src {
		existing, ok := dst[winner]
		if !ok {
			dst[winner] = support
			continue
		}
		total := new(big.Int).Add(existing.Total, support.Total)
		backers := append(append([]model.Nomination(nil), existing.Backers...), support.Backers...)
		dst[winner] = model.Support{Total: total, Backers: dedupeBackers(backers)}
	}
}

func dedupeBackers(backers []model.Nomination) []model.Nomination {
	seen := make(map[account.ID]int)
	var out []model.Nomination
	for _, b := range backers {
		if idx, ok := seen[b.Nominator]; ok {
			if b.Stake.Cmp(out[idx].Stake) > 0 {
				out[idx] = b
			}
			continue
		}
		seen[b.Nominator] = len(out)
		out = append(out, b)
	}
	return out
}

// decorate resolves each winner's ValidatorPrefs and assembles a fully
// decorated model.Validator, fanning out across winners with a bounded
// concurrency cap per §4.6.6/§5.
func decorate(ctx context.Context, builder *snapshot.Builder, winners []account.ID, support map[account.ID]model.Support, at storage.BlockHash) ([]model.Validator, error) {
	validators := make([]model.Validator, len(winners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDecorations)
	for i, winner := range winners {
		i, winner := i, winner
		g.Go(func() error {
			commission, blocked, err := builder.ValidatorPrefsAt(gctx, winner, at)
			if err != nil {
				return err
			}
			sup := support[winner]
			selfStake := big.NewInt(0)
			var noms []model.Nomination
			for _, b := range sup.Backers {
				if b.Nominator == winner {
					selfStake = b.Stake
					continue
				}
				noms = append(noms, b)
			}
			sort.Slice(noms, func(a, b int) bool { return lessID(noms[a].Nominator, noms[b].Nominator) })
			total := sup.Total
			if total == nil {
				total = big.NewInt(0)
			}
			validators[i] = model.Validator{
				Stash:            winner,
				SelfStake:        selfStake,
				TotalStake:       total,
				Commission:       commission,
				Blocked:          blocked,
				NominationsCount: len(noms),
				Nominations:      noms,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return validators, nil
}

func lessID(a, b account.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// decodeLedgerActive decodes just the active balance out of a
// StakingLedger value (stash: 32 bytes, total: compact, active:
// compact), the same layout snapshot/decode.go's unexported
// decodeStakingLedger assumes; duplicated here in miniature since this
// package only ever needs the active field and importing an unexported
// decoder across packages isn't possible.
func decodeLedgerActive(raw []byte) (*big.Int, error) {
	d := scalecodec.NewDecoder(raw)
	if _, err := d.Bytes(32); err != nil {
		return nil, apperr.Decode(err, "decode StakingLedger.stash")
	}
	if _, err := d.CompactUint(); err != nil {
		return nil, apperr.Decode(err, "decode StakingLedger.total")
	}
	active, err := d.CompactUint()
	if err != nil {
		return nil, apperr.Decode(err, "decode StakingLedger.active")
	}
	return new(big.Int).SetUint64(active), nil
}
