// Package api defines the JSON payloads served under /api and shared by the
// CLI client.
//
// Keep these types transport-shaped: the journal and dependency packages own
// the domain structs and the converters here map between the two.
package api
