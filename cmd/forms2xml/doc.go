// Package main hosts the forms2xml entrypoint and command graph.
//
// The Cobra-based command tree runs the conversion gateway, submits modules to
// a running instance, reports converter dependencies and gateway status, lists
// conversion history, and scaffolds configuration. Configuration resolution
// and logging setup live here so subcommands stay declarative.
package main
