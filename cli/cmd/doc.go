// Package cmd implements the tpctl subcommands.
//
// Remote commands (list, enable, disable, configure, apply, message, ui) talk
// to the control server of an instrumented process through a [Remote] stored
// in the command context. Local commands (demo, view, init, version) need no
// server.
package cmd

var (
	// AddrIdentifier is the kong variable identifier containing the default
	// control server address.
	AddrIdentifier = "addr"

	// CacheIdentifier is the kong variable identifier containing the path to
	// the runtime cache directory.
	CacheIdentifier = "cache"

	// ConfigIdentifier is the kong variable identifier containing the path to
	// the configuration file.
	ConfigIdentifier = "config"
)
