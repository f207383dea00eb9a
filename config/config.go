// Package config implements optional file-based defaults for the CLI
// (C15): a TOML file supplying chain/endpoint/election defaults,
// overridden by any flag the caller passes explicitly. Grounded on
// go-ethereum's `cmd/geth/config.go` (`tomlSettings`, `loadConfig`),
// the same `naoina/toml` decoder the teacher's go.mod already requires.
package config

import (
	"bufio"
	"os"
	"reflect"
	"strings"

	"github.com/naoina/toml"
	"github.com/tos-network/electsim/apperr"
)

// tomlSettings mirrors go-ethereum's field-name normalization: TOML keys
// are lower-cased and underscored, and an unrecognized key in the file
// is an error rather than silently ignored (catches typos in operator
// config files early).
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, name string) string {
		return strings.ToLower(name)
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return strings.ToLower(field)
	},
	MissingField: func(rt reflect.Type, field string) error {
		return apperr.Config("config file: unknown field %q", field)
	},
}

// File is the shape of an optional electsim config file.
type File struct {
	Chain        string `toml:"chain,omitempty"`
	RPCEndpoint  string `toml:"rpc_endpoint,omitempty"`
	Algorithm    string `toml:"algorithm,omitempty"`
	Iterations   int    `toml:"iterations,omitempty"`
	Reduce       bool   `toml:"reduce,omitempty"`
	ServerAddr   string `toml:"server_address,omitempty"`
}

// Load reads and decodes a TOML config file. A file that cannot be
// opened (including a missing one) or parsed fails with KindConfig;
// callers only call Load when --config was passed.
func Load(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, apperr.Config("open config file %s: %v", path, err)
	}
	defer f.Close()

	var cfg File
	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		return File{}, apperr.Config("parse config file %s: %v", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills any zero field of override with the corresponding
// field from file, implementing the flags > file > built-in-defaults
// precedence: callers pass already-flag-resolved values as override and
// only empty ones fall through to the file.
func ApplyDefaults(override, file File) File {
	if override.Chain == "" {
		override.Chain = file.Chain
	}
	if override.RPCEndpoint == "" {
		override.RPCEndpoint = file.RPCEndpoint
	}
	if override.Algorithm == "" {
		override.Algorithm = file.Algorithm
	}
	if override.Iterations == 0 {
		override.Iterations = file.Iterations
	}
	if !override.Reduce {
		override.Reduce = file.Reduce
	}
	if override.ServerAddr == "" {
		override.ServerAddr = file.ServerAddr
	}
	return override
}
