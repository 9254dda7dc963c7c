// Package daemon runs the long-lived forms2xml gateway process.
//
// It wires configuration, the Forms codec, staging, and the conversion journal
// into a single lifecycle with flock-based locking so only one instance serves
// a staging directory. The HTTP server mounts the conversion handler at the
// root path and exposes token-guarded diagnostics under /api. A background
// sweeper removes stale staged files and prunes old journal rows.
package daemon
