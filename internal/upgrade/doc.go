// Package upgrade moves Forms 6 modules to Forms 11 through conversion
// gateways.
//
// A run streams three stages joined by pipes: the source gateway dumps the
// binary module to XML, the transform package rewrites the XML, and the
// target gateway compiles the result. The source and target may be the same
// gateway or two installations of different Forms versions. The compiled
// module lands in a hidden sibling of the destination and is renamed into
// place only when every stage succeeded, so a failed run never leaves a
// partial module behind.
package upgrade
