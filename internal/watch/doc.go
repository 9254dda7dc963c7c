// Package watch runs a handler for every file that appears in a directory.
//
// Events from fsnotify are debounced per path: a file is handled once no
// create or write event arrived for the settle period. Handlers run under a
// concurrency cap and are retried with a linear backoff. Cancelling the run
// context stops the watch and waits for handlers already running.
package watch
