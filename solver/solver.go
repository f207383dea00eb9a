// Package solver implements the NPOS election algorithms: Sequential
// Phragmén and PhragMMS, the edge-reduction post-process, and the
// conversion from ratio-based assignments to absolute per-winner
// support. Grounded on original_source/src/simulate.rs's call sequence
// (`seq_phragmen`/`phragmms` → `assignment_ratio_to_staked_normalized` →
// optional `reduce` → `to_support_map`) and on the public algorithm
// description of sp_npos_elections, since that crate's Rust source
// itself is not part of the retrieved pack.
package solver

import (
	"math"
	"math/big"
	"sort"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/model"
)

// Edge is one voter-to-target assignment with its share of that voter's
// stake expressed as a ratio in [0, 1].
type Edge struct {
	Target account.ID
	Ratio  float64
}

// Assignment is one voter's set of ratio-based edges to elected targets.
type Assignment struct {
	Who   account.ID
	Edges []Edge
}

// Result is the raw output of an election algorithm: the elected
// targets in election order, and the ratio-based assignments describing
// how each voter split its support among them.
type Result struct {
	Winners     []account.ID
	Assignments []Assignment
}

// Solver runs an NPOS election over a fixed voter/target universe.
type Solver interface {
	Solve(desired int, targets []account.ID, voters []model.Voter, balancing *BalancingConfig) (Result, error)
}

// BalancingConfig mirrors sp_npos_elections::BalancingConfig: a bounded
// number of post-election load-balancing passes.
type BalancingConfig struct {
	Iterations int
	Tolerance  float64
}

type candidate struct {
	id            account.ID
	approvalStake float64 // sum of stake of voters approving this candidate
	score         float64
	elected       bool
}

type voterState struct {
	id     account.ID
	stake  float64
	load   float64
	approves []int // indices into the candidate slice
}

// seqPhragmen implements the Sequential Phragmén selection rule: at each
// round, elect the unelected candidate with the lowest "load score", then
// raise every voter backing that candidate to that score, so later
// rounds account for the support already committed.
type seqPhragmen struct{}

// SeqPhragmen returns the Sequential Phragmén Solver.
func SeqPhragmen() Solver { return seqPhragmen{} }

func buildState(targets []account.ID, voters []model.Voter) ([]candidate, []voterState) {
	idx := make(map[account.ID]int, len(targets))
	cands := make([]candidate, len(targets))
	for i, t := range targets {
		cands[i] = candidate{id: t}
		idx[t] = i
	}
	vs := make([]voterState, len(voters))
	for i, v := range voters {
		stake := float64(v.Stake)
		var approves []int
		for _, t := range v.Target {
			if ci, ok := idx[t]; ok {
				approves = append(approves, ci)
				cands[ci].approvalStake += stake
			}
		}
		vs[i] = voterState{id: v.Who, stake: stake, approves: approves}
	}
	return cands, vs
}

func (seqPhragmen) Solve(desired int, targets []account.ID, voters []model.Voter, balancing *BalancingConfig) (Result, error) {
	if desired <= 0 {
		return Result{}, apperr.Election("desired winner count must be positive, got %d", desired)
	}
	if desired > len(targets) {
		return Result{}, apperr.Election("desired winner count %d exceeds %d available targets", desired, len(targets))
	}

	cands, vs := buildState(targets, voters)

	var winners []int
	for round := 0; round < desired; round++ {
		best := -1
		bestScore := 0.0
		for i := range cands {
			if cands[i].elected {
				continue
			}
			score := candidateScore(&cands[i], i, vs)
			cands[i].score = score
			if best == -1 || score < bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			return Result{}, apperr.Election("no eligible candidate remains in round %d", round)
		}
		cands[best].elected = true
		winners = append(winners, best)
		for _, vi := range votersApproving(vs, best) {
			if vs[vi].load < bestScore {
				vs[vi].load = bestScore
			}
		}
	}

	electedSet := make(map[int]bool, len(winners))
	for _, w := range winners {
		electedSet[w] = true
	}
	edges := buildVoterEdges(vs, electedSet)
	if balancing != nil && balancing.Iterations > 0 {
		support := computeSupport(vs, edges, len(cands))
		balance(vs, edges, support, balancing.Iterations, balancing.Tolerance)
	}

	return assemble(cands, vs, edges, winners), nil
}

// candidateScore computes (1 + Σ approving voters' load*stake) /
// approvalStake, the core Phragmén load metric. A candidate with no
// approval stake scores +Inf so it is never picked while any viable
// candidate remains. idx is c's own position in the candidate slice,
// used to test each voter's approval set.
func candidateScore(c *candidate, idx int, vs []voterState) float64 {
	if c.approvalStake == 0 {
		return math.Inf(1)
	}
	numerator := 1.0
	for i := range vs {
		if containsInt(vs[i].approves, idx) {
			numerator += vs[i].load * vs[i].stake
		}
	}
	return numerator / c.approvalStake
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func votersApproving(vs []voterState, candidateIdx int) []int {
	var out []int
	for i := range vs {
		if containsInt(vs[i].approves, candidateIdx) {
			out = append(out, i)
		}
	}
	return out
}

// voterEdges is the mutable per-voter allocation balance() adjusts and
// assemble() reads: for each of a voter's elected approvals (idx, a
// position into the candidate slice), weight holds the fraction of that
// voter's stake currently assigned to it. Weights for a given voter
// always sum to 1 (or to 0 if the voter has no elected approvals).
type voterEdges struct {
	idx    []int
	weight []float64
}

// buildVoterEdges seeds every voter's elected approvals with an equal
// share, the starting point both the unbalanced and balanced paths
// assemble from.
func buildVoterEdges(vs []voterState, electedSet map[int]bool) []voterEdges {
	out := make([]voterEdges, len(vs))
	for i, v := range vs {
		var idxs []int
		for _, ci := range v.approves {
			if electedSet[ci] {
				idxs = append(idxs, ci)
			}
		}
		weight := make([]float64, len(idxs))
		if len(idxs) > 0 {
			share := 1.0 / float64(len(idxs))
			for k := range weight {
				weight[k] = share
			}
		}
		out[i] = voterEdges{idx: idxs, weight: weight}
	}
	return out
}

// computeSupport sums, for each candidate, the stake every voter
// currently allocates to it under edges.
func computeSupport(vs []voterState, edges []voterEdges, numCands int) []float64 {
	support := make([]float64, numCands)
	for i, v := range vs {
		e := edges[i]
		for k, ci := range e.idx {
			support[ci] += e.weight[k] * v.stake
		}
	}
	return support
}

// assemble converts each voter's final edge weights into ratio-based
// Assignments, the same shape assignment_ratio_to_staked_normalized
// expects as input.
func assemble(cands []candidate, vs []voterState, edges []voterEdges, winners []int) Result {
	var assignments []Assignment
	for i, v := range vs {
		e := edges[i]
		var out []Edge
		for k, ci := range e.idx {
			if e.weight[k] <= 0 {
				continue
			}
			out = append(out, Edge{Target: cands[ci].id, Ratio: e.weight[k]})
		}
		if len(out) == 0 {
			continue
		}
		sort.Slice(out, func(a, b int) bool { return compareIDs(out[a].Target, out[b].Target) < 0 })
		assignments = append(assignments, Assignment{Who: v.id, Edges: out})
	}

	result := Result{Assignments: assignments}
	for _, w := range winners {
		result.Winners = append(result.Winners, cands[w].id)
	}
	return result
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

// balance runs a bounded number of load-balancing passes over edges: for
// every voter backing two or more elected candidates, it moves half the
// support gap between the most-supported of its edges and the
// least-supported one from the former to the latter, which closes the
// gap unless the stake on the higher edge runs out first. This is the
// simplified counterpart (not a numerical port) of sp_npos_elections's
// post-election balancing: both converge elected candidates' supports
// toward parity by reallocating multi-approval voters' stake rather than
// single-approval voters', whose allocation is fixed at 1.0 regardless.
// The pass stops early once no voter's move exceeds tolerance.
func balance(vs []voterState, edges []voterEdges, support []float64, iterations int, tolerance float64) {
	for iter := 0; iter < iterations; iter++ {
		maxMove := 0.0
		for vi, v := range vs {
			e := &edges[vi]
			if len(e.idx) < 2 {
				continue
			}
			hi, lo := 0, 0
			for k := 1; k < len(e.idx); k++ {
				if support[e.idx[k]] > support[e.idx[hi]] {
					hi = k
				}
				if support[e.idx[k]] < support[e.idx[lo]] {
					lo = k
				}
			}
			if hi == lo {
				continue
			}
			diff := support[e.idx[hi]] - support[e.idx[lo]]
			if diff <= tolerance {
				continue
			}
			moveStake := diff / 2
			if avail := e.weight[hi] * v.stake; moveStake > avail {
				moveStake = avail
			}
			if moveStake <= 0 {
				continue
			}
			deltaWeight := moveStake / v.stake
			e.weight[hi] -= deltaWeight
			e.weight[lo] += deltaWeight
			support[e.idx[hi]] -= moveStake
			support[e.idx[lo]] += moveStake
			if moveStake > maxMove {
				maxMove = moveStake
			}
		}
		if maxMove <= tolerance {
			break
		}
	}
}

// AssignmentRatioToStaked converts ratio-based Edges into absolute
// Balance amounts given each voter's total stake, the counterpart of
// sp_npos_elections::assignment_ratio_to_staked_normalized. Each amount
// is truncated toward zero and the results are not re-normalized, so a
// voter's amounts can sum to slightly less than its stake.
func AssignmentRatioToStaked(assignments []Assignment, voters []model.Voter) map[account.ID][]model.Nomination {
	stakeOf := make(map[account.ID]uint64, len(voters))
	for _, v := range voters {
		stakeOf[v.Who] = v.Stake
	}
	out := make(map[account.ID][]model.Nomination)
	for _, a := range assignments {
		stake := new(big.Float).SetUint64(stakeOf[a.Who])
		for _, e := range a.Edges {
			amount := new(big.Float).Mul(stake, big.NewFloat(e.Ratio))
			intAmount, _ := amount.Int(nil)
			out[e.Target] = append(out[e.Target], model.Nomination{Nominator: a.Who, Stake: intAmount})
		}
	}
	return out
}

// ToSupportMap aggregates per-target nominations into total Support,
// mirroring sp_npos_elections::to_support_map.
func ToSupportMap(staked map[account.ID][]model.Nomination) map[account.ID]model.Support {
	out := make(map[account.ID]model.Support, len(staked))
	for target, noms := range staked {
		total := big.NewInt(0)
		for _, n := range noms {
			total = new(big.Int).Add(total, n.Stake)
		}
		sorted := append([]model.Nomination{}, noms...)
		sort.Slice(sorted, func(i, j int) bool { return compareIDs(sorted[i].Nominator, sorted[j].Nominator) < 0 })
		out[target] = model.Support{Total: total, Backers: sorted}
	}
	return out
}

// phragMMS implements a max-min support selection rule: at each round it
// elects the unelected candidate whose approval stake, after accounting
// for load already committed by voters to previously-elected candidates,
// is the largest — the greedy counterpart to Sequential Phragmén's
// smallest-load rule. sp_npos_elections's own PhragMMS additionally
// iterates a local-search pass after each greedy pick to directly
// maximize the minimal support among winners; that refinement is not
// reproduced here; the single greedy pass is a documented simplification
// (see DESIGN.md), not a claim of numerical equivalence to the reference
// algorithm.
type phragMMS struct{}

// PhragMMS returns the PhragMMS Solver.
func PhragMMS() Solver { return phragMMS{} }

func (phragMMS) Solve(desired int, targets []account.ID, voters []model.Voter, balancing *BalancingConfig) (Result, error) {
	if desired <= 0 {
		return Result{}, apperr.Election("desired winner count must be positive, got %d", desired)
	}
	if desired > len(targets) {
		return Result{}, apperr.Election("desired winner count %d exceeds %d available targets", desired, len(targets))
	}

	cands, vs := buildState(targets, voters)

	var winners []int
	for round := 0; round < desired; round++ {
		best := -1
		bestNet := -1.0
		for i := range cands {
			if cands[i].elected {
				continue
			}
			net := netApproval(i, vs)
			if best == -1 || net > bestNet {
				best = i
				bestNet = net
			}
		}
		if best == -1 {
			return Result{}, apperr.Election("no eligible candidate remains in round %d", round)
		}
		cands[best].elected = true
		winners = append(winners, best)
		for _, vi := range votersApproving(vs, best) {
			vs[vi].load += vs[vi].stake / float64(len(vs[vi].approves))
		}
	}

	electedSet := make(map[int]bool, len(winners))
	for _, w := range winners {
		electedSet[w] = true
	}
	edges := buildVoterEdges(vs, electedSet)
	if balancing != nil && balancing.Iterations > 0 {
		support := computeSupport(vs, edges, len(cands))
		balance(vs, edges, support, balancing.Iterations, balancing.Tolerance)
	}

	return assemble(cands, vs, edges, winners), nil
}

// netApproval sums the stake of voters approving candidate idx, net of
// load they have already committed elsewhere, so already-satisfied
// voters contribute less to a second pick.
func netApproval(idx int, vs []voterState) float64 {
	var total float64
	for i := range vs {
		if containsInt(vs[i].approves, idx) {
			remaining := vs[i].stake - vs[i].load
			if remaining < 0 {
				remaining = 0
			}
			total += remaining
		}
	}
	return total
}
