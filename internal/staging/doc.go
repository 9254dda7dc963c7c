// Package staging manages the temporary files a conversion request needs.
//
// A Manager owns one staging directory. Each request opens a Scope and defers
// its Close; every StagedFile acquired through the scope is deleted when the
// scope closes, whatever path the handler took to return. Release is
// idempotent so explicit early releases never turn into double deletes.
//
// CleanStale sweeps files left behind by a process that died mid-request.
// Only files carrying FilePrefix are touched.
package staging
