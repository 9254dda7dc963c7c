// Package transform rewrites Forms 6 module XML so the module compiles and
// runs under Forms 11.
//
// Process parses the document into a small tree that keeps namespace
// prefixes, attribute order, comments and text as they were, applies the
// upgrade rules, and writes it back as UTF-8. The rules subclass windows,
// stacked canvases, visual attributes and module parameters from the
// BR_FLIB library, switch the coordinate system from character cells to
// pixels (scaling every position and size by the cell size), drop obsolete
// alerts and attach the procedure library. Subclassing sources with no
// known replacement are listed in the Report rather than failing the run.
package transform
