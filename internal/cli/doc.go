// Package cli wires together the Cobra command tree for the wordbatch binary.
//
// It defines the root command and all subcommands (run, status, config,
// cache, doctor, version), binds flags, reads configuration, drives the
// batch runner, and returns deterministic exit codes.
package cli
