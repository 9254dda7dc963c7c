package transform

import (
	"io"
	"sort"

	"forms2xml/internal/services"
)

// Default character cell size Forms 6 modules were laid out in.
const (
	DefaultCellWidth  = 12
	DefaultCellHeight = 24
)

// Options tunes the rewrite.
type Options struct {
	// CellWidth and CellHeight scale character coordinates to pixels.
	// Zero selects the defaults.
	CellWidth  int
	CellHeight int
}

// Report summarizes what a rewrite changed.
type Report struct {
	Module string
	// UnknownParents lists subclassing sources with no Forms 11 mapping.
	// Objects inheriting from them are left as they were.
	UnknownParents        []string
	RemovedAlerts         []string
	AddedVisualAttributes []string
	AddedParameters       []string
	AttachedLibraries     []string
}

// Process reads a module XML document from r, rewrites it for Forms 11 and
// writes the result to w as UTF-8.
func Process(w io.Writer, r io.Reader, opts Options) (Report, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return Report{}, services.Wrap(services.ErrConversion, "transform", "parse", "malformed module XML", err)
	}
	report, err := rewrite(doc, opts)
	if err != nil {
		return report, err
	}
	if err := doc.writeTo(w); err != nil {
		return report, services.Wrap(services.ErrResource, "transform", "write", "", err)
	}
	return report, nil
}

func rewrite(doc *document, opts Options) (Report, error) {
	if opts.CellWidth <= 0 {
		opts.CellWidth = DefaultCellWidth
	}
	if opts.CellHeight <= 0 {
		opts.CellHeight = DefaultCellHeight
	}

	module := doc.root
	if !module.is("FormModule") {
		found := doc.root.descendants("FormModule")
		if len(found) == 0 {
			return Report{}, services.Wrap(services.ErrConversion, "transform", "rewrite", "document has no FormModule element", nil)
		}
		module = found[0]
	}

	r := &rewriter{
		opts:    opts,
		module:  module,
		name:    module.get("Name"),
		runtime: module.get("RuntimeComp"),
		used:    map[string]bool{},
		exists:  map[string]bool{},
		unknown: map[string]bool{},
	}
	r.report.Module = r.name

	r.removeAlerts()
	r.stackedCanvases()
	r.coordinates()
	module.walk(r.visit)
	r.missingVisualAttributes()
	r.requiredParameters()

	r.report.UnknownParents = sortedKeys(r.unknown)
	return r.report, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
