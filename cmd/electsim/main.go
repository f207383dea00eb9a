// Command electsim runs the NPOS election simulator against a live or
// recorded Substrate-family chain. Grounded on the teacher's
// `cmd/toskey`: a package-level `*cli.App` built in init(), package-level
// flag vars carrying a urfave/cli/v2 Category, and a main() that does
// nothing but Run and translate a returned error into an exit code. The
// teacher's own `flags.NewApp` helper (gitCommit/gitDate/usage wiring)
// was not available to copy verbatim, so the App is built directly here
// in the same shape it produces.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/tos-network/electsim/chainconfig"
	"github.com/tos-network/electsim/config"
	"github.com/tos-network/electsim/httpapi"
	"github.com/tos-network/electsim/internal/cliflags"
	"github.com/tos-network/electsim/mining"
	"github.com/tos-network/electsim/runtimeconfig"
	"github.com/tos-network/electsim/scalecodec"
	"github.com/tos-network/electsim/service"
	"github.com/tos-network/electsim/storage"
	"github.com/tos-network/electsim/xlog"
	"github.com/urfave/cli/v2"
)

var gitCommit = ""
var gitDate = ""

var app *cli.App

func init() {
	app = &cli.App{
		Name:      "electsim",
		Usage:     "simulate NPOS elections against a Substrate-family chain",
		Version:   versionString(),
		Flags: []cli.Flag{
			chainFlag,
			rpcEndpointFlag,
			configFlag,
			verboseFlag,
		},
		Commands: []*cli.Command{
			commandSimulate,
			commandSnapshot,
			commandServer,
		},
	}
}

func versionString() string {
	if gitCommit == "" {
		return "dev"
	}
	if gitDate == "" {
		return gitCommit
	}
	return fmt.Sprintf("%s-%s", gitCommit, gitDate)
}

// Top-level flags, shared by every subcommand.
var (
	chainFlag = &cli.StringFlag{
		Name:     "chain",
		Usage:    "chain profile to use (polkadot, kusama, substrate); auto-detected from the node when omitted",
		Category: cliflags.ChainCategory,
	}
	rpcEndpointFlag = &cli.StringFlag{
		Name:     "rpc-endpoint",
		Usage:    "websocket JSON-RPC endpoint of the target node",
		Category: cliflags.ChainCategory,
	}
	configFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "optional TOML file supplying defaults for any flag not passed explicitly",
		Category: cliflags.MiscCategory,
	}
	verboseFlag = &cli.BoolFlag{
		Name:     "verbose",
		Usage:    "enable debug-level logging",
		Category: cliflags.LoggingCategory,
	}
)

// simulate subcommand flags.
var (
	blockFlag = &cli.StringFlag{
		Name:     "block",
		Usage:    "block hash (0x-prefixed) or \"latest\"",
		Value:    "latest",
		Category: cliflags.ElectionCategory,
	}
	algorithmFlag = &cli.StringFlag{
		Name:     "algorithm",
		Usage:    "seq-phragmen or phragmms (falls back to the config file's algorithm, then seq-phragmen)",
		Category: cliflags.ElectionCategory,
	}
	iterationsFlag = &cli.IntFlag{
		Name:     "iterations",
		Usage:    "balancing passes to run after solving (0 disables balancing); falls back to the config file's iterations",
		Category: cliflags.ElectionCategory,
	}
	reduceFlag = &cli.BoolFlag{
		Name:     "reduce",
		Usage:    "apply edge-count reduction to the solution before aggregating support; falls back to the config file's reduce",
		Category: cliflags.ElectionCategory,
	}
	desiredValidatorsFlag = &cli.Uint64Flag{
		Name:     "count",
		Aliases:  []string{"desired-validators"},
		Usage:    "override the number of winners to elect (default: the chain's DesiredTargets)",
		Category: cliflags.ElectionCategory,
	}
	manualOverrideFlag = &cli.StringFlag{
		Name:     "manual-override",
		Usage:    "path to a JSON file describing a manual voter/candidate override to apply before solving",
		Category: cliflags.ElectionCategory,
	}
	outputFlag = &cli.StringFlag{
		Name:     "output",
		Aliases:  []string{"o"},
		Usage:    "write JSON result to this file instead of stdout",
		Category: cliflags.MiscCategory,
	}
	addressFlag = &cli.StringFlag{
		Name:     "address",
		Usage:    "address to listen on (falls back to the config file's server_address, then 127.0.0.1:8080)",
		Category: cliflags.ServerCategory,
	}
)

var commandSimulate = &cli.Command{
	Name:  "simulate",
	Usage: "run a full election simulation for a block and print the winners",
	Flags: []cli.Flag{blockFlag, algorithmFlag, iterationsFlag, reduceFlag, desiredValidatorsFlag, manualOverrideFlag, outputFlag},
	Action: func(c *cli.Context) error {
		svc, merged, err := newService(c)
		if err != nil {
			return err
		}

		algorithmName := merged.Algorithm
		if algorithmName == "" {
			algorithmName = "seq-phragmen"
		}
		alg, err := chainconfig.ParseAlgorithm(algorithmName)
		if err != nil {
			return err
		}

		params := service.SimulateParams{
			Block:       c.String(blockFlag.Name),
			Algorithm:   alg,
			Iterations:  merged.Iterations,
			ApplyReduce: merged.Reduce,
		}
		if c.IsSet(desiredValidatorsFlag.Name) {
			count := uint32(c.Uint64(desiredValidatorsFlag.Name))
			params.DesiredValidators = &count
		}
		if path := c.String(manualOverrideFlag.Name); path != "" {
			override, err := loadOverride(path)
			if err != nil {
				return err
			}
			params.ManualOverride = override
		}

		result, err := svc.Simulate(c.Context, params)
		if err != nil {
			return err
		}
		return writeJSON(c.String(outputFlag.Name), result)
	},
}

var commandSnapshot = &cli.Command{
	Name:  "snapshot",
	Usage: "reconstruct and print the voter/target snapshot for a block",
	Flags: []cli.Flag{blockFlag, outputFlag},
	Action: func(c *cli.Context) error {
		svc, _, err := newService(c)
		if err != nil {
			return err
		}
		snap, err := svc.BuildSnapshot(c.Context, c.String(blockFlag.Name))
		if err != nil {
			return err
		}
		return writeJSON(c.String(outputFlag.Name), snap)
	},
}

var commandServer = &cli.Command{
	Name:  "server",
	Usage: "serve /simulate and /snapshot over HTTP",
	Flags: []cli.Flag{addressFlag},
	Action: func(c *cli.Context) error {
		svc, merged, err := newService(c)
		if err != nil {
			return err
		}
		addr := merged.ServerAddr
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		xlog.Info("electsim: listening", "address", addr)
		return http.ListenAndServe(addr, httpapi.NewServer(svc))
	},
}

// newService dials the configured endpoint, infers or parses the chain
// profile, fetches the runtime constants the miner needs, and returns a
// ready-to-use service.Service alongside the merged flags/config-file
// values every subcommand's Action needs to apply its own precedence
// and fallback defaults on top of.
func newService(c *cli.Context) (*service.Service, config.File, error) {
	if c.Bool(verboseFlag.Name) {
		xlog.SetLevel(xlog.LvlDebug)
	}

	merged, err := mergedConfig(c)
	if err != nil {
		return nil, config.File{}, err
	}
	if merged.RPCEndpoint == "" {
		return nil, config.File{}, fmt.Errorf("--rpc-endpoint (or a config file rpc_endpoint) is required")
	}

	ctx := c.Context
	backend, err := storage.DialWS(ctx, merged.RPCEndpoint)
	if err != nil {
		return nil, config.File{}, fmt.Errorf("dial %s: %w", merged.RPCEndpoint, err)
	}

	chain, err := resolveChain(ctx, backend, merged.Chain)
	if err != nil {
		return nil, config.File{}, err
	}
	xlog.Info("electsim: resolved chain", "chain", chain.String())

	if err := loadRuntimeConstants(ctx, backend); err != nil {
		return nil, config.File{}, err
	}

	return service.New(backend, chainconfig.ProfileFor(chain)), merged, nil
}

// mergedConfig applies the flags > file > built-in-default precedence
// SPEC_FULL.md's `--config` section documents: every config-eligible
// flag's current value (zero if the caller never passed it - none of
// Algorithm/Iterations/Reduce/ServerAddr carry a baked-in cli.Flag
// default, precisely so an unset flag doesn't mask the config file)
// seeds override, and config.ApplyDefaults fills any gap from the file.
// A subcommand's own built-in default (e.g. "seq-phragmen",
// "127.0.0.1:8080") is applied afterward, only if the merged value is
// still empty.
func mergedConfig(c *cli.Context) (config.File, error) {
	override := config.File{
		Chain:       c.String(chainFlag.Name),
		RPCEndpoint: c.String(rpcEndpointFlag.Name),
		Algorithm:   c.String(algorithmFlag.Name),
		Iterations:  c.Int(iterationsFlag.Name),
		Reduce:      c.Bool(reduceFlag.Name),
		ServerAddr:  c.String(addressFlag.Name),
	}
	path := c.String(configFlag.Name)
	if path == "" {
		return override, nil
	}
	file, err := config.Load(path)
	if err != nil {
		return config.File{}, err
	}
	return config.ApplyDefaults(override, file), nil
}

func resolveChain(ctx context.Context, backend storage.Backend, explicit string) (chainconfig.Chain, error) {
	if explicit != "" {
		return chainconfig.ParseChain(explicit)
	}
	specName, err := backend.RuntimeVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("auto-detect chain: %w", err)
	}
	return chainconfig.InferFromSpecName(specName)
}

// loadRuntimeConstants fetches the MultiBlockElection/Staking pallet
// constants the miner needs and installs them process-wide via
// runtimeconfig.Set, matching the source tool's one-time
// fetch_miner_constants call at startup.
func loadRuntimeConstants(ctx context.Context, backend storage.Backend) error {
	fetch := func(pallet, name string) (uint32, bool) {
		raw, err := backend.FetchConstant(ctx, pallet, name)
		if err != nil || len(raw) == 0 {
			return 0, false
		}
		v, err := scalecodec.NewDecoder(raw).Uint32()
		if err != nil {
			return 0, false
		}
		return v, true
	}

	var c runtimeconfig.Constants
	pages, ok := fetch("MultiBlockElection", "Pages")
	if !ok {
		return fmt.Errorf("fetch MultiBlockElection.Pages: required constant unavailable")
	}
	c.Pages = pages
	c.MaxWinnersPerPage, _ = fetch("MultiBlockElection", "MaxWinnersPerPage")
	c.MaxBackersPerWinner, _ = fetch("MultiBlockElection", "MaxBackersPerWinner")
	c.VoterSnapshotPerBlock, _ = fetch("MultiBlockElection", "VoterSnapshotPerBlock")
	c.TargetSnapshotPerBlock, _ = fetch("MultiBlockElection", "TargetSnapshotPerBlock")
	c.MaxLength, _ = fetch("MultiBlockElection", "MaxLength")
	c.MaxVotesPerVoter, _ = fetch("Staking", "MaxNominations")

	withDefaults, err := runtimeconfig.WithDefaults(c)
	if err != nil {
		return err
	}
	runtimeconfig.Set(withDefaults)
	return nil
}

// overrideFile is the on-disk shape of --manual-override, the same
// schema httpapi accepts inline in a /simulate request body.
type overrideFile struct {
	VotersAdd []struct {
		Account string   `json:"account"`
		Weight  uint64   `json:"weight"`
		Targets []string `json:"targets"`
	} `json:"voters_add"`
	VotersRemove     []string `json:"voters_remove"`
	CandidatesAdd    []string `json:"candidates_add"`
	CandidatesRemove []string `json:"candidates_remove"`
}

func loadOverride(path string) (*mining.Override, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manual override %s: %w", path, err)
	}
	var f overrideFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse manual override %s: %w", path, err)
	}
	out := &mining.Override{
		VotersRemove:     f.VotersRemove,
		CandidatesAdd:    f.CandidatesAdd,
		CandidatesRemove: f.CandidatesRemove,
	}
	for _, v := range f.VotersAdd {
		out.VotersAdd = append(out.VotersAdd, mining.OverrideVoter{Account: v.Account, Weight: v.Weight, Targets: v.Targets})
	}
	return out, nil
}

func writeJSON(path string, v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err := os.Stdout.Write(append(buf, '\n'))
		return err
	}
	return os.WriteFile(path, append(buf, '\n'), 0o644)
}

func main() {
	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
