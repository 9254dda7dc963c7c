// Package gateway implements the conversion request protocol served on the
// root path.
//
// Classify turns method, headers and query into a ConversionRequest or a
// Violation. The Handler stages inline bodies through a staging.Scope that
// it always closes, hands the request to the Orchestrator, and maps the
// resulting Outcome onto the response:
//
//	method violation       403  text body naming the method
//	other violation        500  text body
//	conversion / resource  500  "ERROR: " + message
//	result in response     200  target media type
//	result at dst          201  Location file://<abs dst>
//
// Results bound for the response are rendered into a staged file first, so a
// codec failure is still answered with 500 and successful bodies carry a
// Content-Length. Results bound for dst are written to a hidden sibling and
// renamed into place, leaving dst untouched on failure.
package gateway
