// Package preflight provides readiness checks for the filesystem paths and
// Forms converter tools the gateway depends on.
//
// The daemon runs RunAll when it starts and logs every failing check, and the
// CLI deps command prints the same results so operators can fix a broken
// install before the first request arrives.
package preflight
