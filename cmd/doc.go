// Package cmd implements the command-line interface of hwbridge. It provides
// a hierarchical command structure for running the bridge and for talking to
// a running bridge as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts the bridge with the simulated hardware driver
//   - call: Client commands (connect, rpc, perf)
//   - util: Shared utilities for flags, configuration and colored output (internal use)
//
// Every flag can also be set through an environment variable HWBRIDGE_<FLAG>
// (e.g. HWBRIDGE_LOG_LEVEL=debug) or a .env / .env.local file.
//
// See hwbridge -help for a list of all commands.
package cmd
