// Package journal keeps a SQLite history of handled conversion requests.
//
// The gateway appends one Record after each response is written; nothing in
// the conversion path reads it back. The CLI history command and the status
// API list recent records, and the daemon prunes rows past the configured
// retention.
package journal
