// Package config defines the configuration for a node.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object
// defined in this package to store and forward configuration options. On
// top of these options, a node relies on a data directory, defined by
// Config.DataDir, where it expects to find:
//
//	priv_key        // a plain text hex dump of the node's private key.
//	whitelist.json  // the set of NodeIds authorized to lead and vote.
package config
