// Package service implements the two top-level operations the CLI and
// HTTP front-ends expose: Simulate (run an election against a
// reconstructed snapshot) and BuildSnapshot (reconstruct and decorate a
// snapshot without solving). Grounded on original_source/src/main.rs's
// `simulate`/`build_snapshot` entry points, which both resolve
// `block? = latest` identically before delegating to snapshot/mining.
package service

import (
	"context"
	"encoding/hex"
	"math/big"
	"sort"
	"strings"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/apperr"
	"github.com/tos-network/electsim/chainconfig"
	"github.com/tos-network/electsim/mining"
	"github.com/tos-network/electsim/model"
	"github.com/tos-network/electsim/reqconfig"
	"github.com/tos-network/electsim/runtimeconfig"
	"github.com/tos-network/electsim/snapshot"
	"github.com/tos-network/electsim/solver"
	"github.com/tos-network/electsim/storage"
	"golang.org/x/sync/errgroup"
)

// defaultBalancingTolerance matches the source tool's solver default,
// applied when a caller requests balancing iterations without also
// specifying a tolerance.
const defaultBalancingTolerance = 1e-10

// maxConcurrentDecorations bounds snapshot-decoration fan-out, mirroring
// the cap used in snapshot and mining.
const maxConcurrentDecorations = 16

// Service orchestrates snapshot reconstruction and election mining
// against one chain endpoint.
type Service struct {
	backend storage.Backend
	builder *snapshot.Builder
	profile chainconfig.Profile
}

// New wraps backend for the given chain profile.
func New(backend storage.Backend, profile chainconfig.Profile) *Service {
	return &Service{backend: backend, builder: snapshot.NewBuilder(backend), profile: profile}
}

// SimulateParams carries every caller-supplied override for a Simulate
// call; zero values mean "use the chain/profile default".
type SimulateParams struct {
	Block             string
	Algorithm         chainconfig.Algorithm
	Iterations        int
	ApplyReduce       bool
	DesiredValidators *uint32
	MaxNominations    *uint32
	MinNominatorBond  *big.Int
	MinValidatorBond  *big.Int
	ManualOverride    *mining.Override
}

// resolveBlock resolves a "latest" or "0x..."-prefixed hex block
// reference to a concrete BlockHash, matching the CLI/HTTP surface's
// `--block <hash|"latest">` parameter.
func (s *Service) resolveBlock(ctx context.Context, block string) (storage.BlockHash, error) {
	if block == "" || strings.EqualFold(block, "latest") {
		return s.backend.BlockHashAt(ctx, nil)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(block, "0x"))
	if err != nil {
		return nil, apperr.BadRequest("invalid block hash %q: %v", block, err)
	}
	return storage.BlockHash(decoded), nil
}

// Simulate reconstructs a snapshot at the resolved block, applies any
// bond overrides and manual override, runs the selected solver, and
// returns the decorated winner set. A per-request iteration count bound
// via reqconfig.WithBalancingIterations takes precedence over
// params.Iterations, matching C8's request-scoped binding; the algorithm
// always comes from params.Algorithm.
func (s *Service) Simulate(ctx context.Context, params SimulateParams) (model.SimulationResult, error) {
	at, err := s.resolveBlock(ctx, params.Block)
	if err != nil {
		return model.SimulationResult{}, err
	}

	details, err := s.builder.BlockDetails(ctx, at)
	if err != nil {
		return model.SimulationResult{}, err
	}
	if params.DesiredValidators != nil {
		details.DesiredTargets = *params.DesiredValidators
	}

	cfg, err := s.builder.StakingConfig(ctx, details, true)
	if err != nil {
		return model.SimulationResult{}, err
	}
	if params.MaxNominations != nil {
		cfg.MaxNominations = *params.MaxNominations
	}

	snap, err := s.builder.Build(ctx, details, cfg)
	if err != nil {
		return model.SimulationResult{}, err
	}

	constants, err := runtimeconfig.Get()
	if err != nil {
		return model.SimulationResult{}, err
	}
	perPage := int(constants.VoterSnapshotPerBlock)

	snap, err = mining.FilterVotersByBond(snap, params.MinNominatorBond, perPage)
	if err != nil {
		return model.SimulationResult{}, err
	}
	snap, err = mining.FilterTargetsByBond(ctx, s.backend, snap, params.MinValidatorBond, at)
	if err != nil {
		return model.SimulationResult{}, err
	}
	snap, err = mining.ApplyOverride(snap, params.ManualOverride, perPage)
	if err != nil {
		return model.SimulationResult{}, err
	}

	iterations := params.Iterations
	if override, ok := reqconfig.BalancingIterations(ctx); ok {
		iterations = override
	}
	var balancing *solver.BalancingConfig
	if iterations > 0 {
		balancing = &solver.BalancingConfig{Iterations: iterations, Tolerance: defaultBalancingTolerance}
	}

	return mining.Mine(ctx, s.builder, snap, int(details.DesiredTargets), params.Algorithm, params.ApplyReduce, balancing, details.Round, at)
}

// BuildSnapshot reconstructs the paged snapshot at the resolved block
// and decorates it into the human-facing, unpaged Snapshot view: each
// target with its ValidatorPrefs, each voter with its nominations in
// input order.
func (s *Service) BuildSnapshot(ctx context.Context, block string) (model.Snapshot, error) {
	at, err := s.resolveBlock(ctx, block)
	if err != nil {
		return model.Snapshot{}, err
	}
	details, err := s.builder.BlockDetails(ctx, at)
	if err != nil {
		return model.Snapshot{}, err
	}
	cfg, err := s.builder.StakingConfig(ctx, details, true)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err := s.builder.Build(ctx, details, cfg)
	if err != nil {
		return model.Snapshot{}, err
	}

	targets := snap.Targets.Items()
	validators := make([]model.SnapshotValidator, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDecorations)
	for i, stash := range targets {
		i, stash := i, stash
		g.Go(func() error {
			commission, blocked, err := s.builder.ValidatorPrefsAt(gctx, stash, at)
			if err != nil {
				return err
			}
			validators[i] = model.SnapshotValidator{Stash: stash, Commission: commission, Blocked: blocked}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Snapshot{}, err
	}
	sort.Slice(validators, func(i, j int) bool { return lessID(validators[i].Stash, validators[j].Stash) })

	var nominators []model.SnapshotNominator
	for _, page := range snap.Voters {
		for _, v := range page.Items() {
			nominators = append(nominators, model.SnapshotNominator{
				Stash:       v.Who,
				Stake:       new(big.Int).SetUint64(v.Stake),
				Nominations: v.Target,
			})
		}
	}

	return model.Snapshot{Validators: validators, Nominators: nominators, Config: cfg}, nil
}

func lessID(a, b account.ID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
