package transform

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Library module Forms 11 objects subclass from.
const (
	baseLibrary     = "BR_FLIB"
	baseLibraryFile = "BR_FLIB.fmb"
	libraryType     = "12"
	mainWindow      = "W_MAIN"
	rootWindow      = "ROOT_WINDOW"
	normalAttribute = "NORMAL"
	promptAttribute = "NORMAL_PROMPT"
	selectAttribute = "SELECT"
)

var (
	obsoleteAlerts = []string{"KERDEZ_ALERT", "UZEN_ALERT"}

	defaultUsedVisualAttributes = []string{"NORMAL_ITEM", selectAttribute, promptAttribute, normalAttribute}

	stackedCanvas = [][2]string{
		{"ParentType", "4"},
		{"ParentName", "C_STCK_CONTENT"},
		{"ParentModule", baseLibrary},
		{"VisualAttributeName", normalAttribute},
		{"ParentFilename", baseLibraryFile},
		{"ParentModuleType", libraryType},
	}

	pixelCoordinates = [][2]string{
		{"CharacterCellWidth", "9"},
		{"CharacterCellHeight", "18"},
		{"CoordinateSystem", "Real"},
		{"RealUnit", "Pixel"},
		{"DefaultFontScaling", "false"},
	}

	// parentTypes is the Forms object type code written on subclassed objects.
	parentTypes = map[string]string{
		"Trigger":         "37",
		"Window":          "41",
		"VisualAttribute": "39",
	}

	// libraryMoves maps Forms 6 libraries to their Forms 11 replacement.
	libraryMoves = map[string][2]string{
		"G_LIB":   {baseLibrary, baseLibraryFile},
		"CIM_LIB": {"BR_CIM_LIB", "BR_CIM_LIB.fmb"},
	}
	knownLibraries = []string{baseLibrary, "BR_CIM_LIB"}

	rootWindowAttrs = [][2]string{
		{"ParentModule", baseLibrary},
		{"ParentName", mainWindow},
		{"ParentFilename", baseLibraryFile},
		{"ParentModuleType", libraryType},
		{"VisualAttributeName", normalAttribute},
		{"Name", mainWindow},
	}
	rootWindowDropped = []string{
		"Height", "Width", "WindowStyle", "CloseAllowed", "MoveAllowed",
		"ResizeAllowed", "MinimizeAllowed", "InheritMenu", "Bevel",
		"FontName", "FontSize", "FontWeight", "FontStyle", "FontSpacing",
	}

	attachedLibraries = []string{"BR_PROCEDURE_LIB"}

	// itemTypeFixes replaces item types Forms 11 refuses in 4.5+ modules.
	itemTypeFixes = map[string]string{
		"Check Box": "Display Item",
		"User Area": "Text Item",
	}

	trailingBlanks = regexp.MustCompile(`[ \t]+(\n|&#10;)`)

	renamedVisualAttributes = map[string]string{"ITEM_SELECT": selectAttribute}
	visualAttributeRefs     = []string{"RecordVisualAttributeGroupName", "VisualAttributeGroupName"}

	promptFonts = []string{"PromptFontName", "PromptFontSize", "PromptFontSpacing", "PromptFontStyle", "PromptFontWeight"}
	itemFonts   = []string{"FontName", "FontSize", "FontSpacing", "FontStyle", "FontWeight"}

	requiredParameters = []string{"TORZSSZAM", "PRG_AZON", "BAZON", "DAZON"}
)

type rewriter struct {
	opts    Options
	module  *element
	name    string
	runtime string

	used    map[string]bool
	exists  map[string]bool
	unknown map[string]bool

	report Report
}

func (r *rewriter) removeAlerts() {
	for _, alert := range r.module.elements() {
		if alert.is("Alert") && slices.Contains(obsoleteAlerts, alert.get("Name")) {
			r.module.removeChild(alert)
			r.report.RemovedAlerts = append(r.report.RemovedAlerts, alert.get("Name"))
		}
	}
}

// stackedCanvases subclasses every stacked canvas from the library content
// canvas, dropping everything the parent supplies.
func (r *rewriter) stackedCanvases() {
	for _, canvas := range r.module.descendants("Canvas") {
		if canvas.get("CanvasType") != "Stacked" {
			continue
		}
		keep := []string{"Name"}
		for _, pair := range stackedCanvas {
			keep = append(keep, pair[0])
		}
		var dropped []string
		for _, attr := range canvas.attrs {
			if attr.Name.Space == "" && !slices.Contains(keep, attr.Name.Local) {
				dropped = append(dropped, attr.Name.Local)
			}
		}
		canvas.remove(dropped...)
		setAll(canvas, stackedCanvas)
	}
}

func (r *rewriter) coordinates() {
	r.module.set("ConsoleWindow", mainWindow)
	for _, coord := range r.module.descendants("Coordinate") {
		setAll(coord, pixelCoordinates)
	}
}

func (r *rewriter) visit(el *element) {
	r.scale(el)
	r.subclass(el)
	r.rootWindow(el)
	r.attachLibraries(el)
	if r.runtime >= "4.5" {
		r.fixItemType(el)
	}
	r.trimSpaces(el)
	r.visualAttribute(el)
	r.promptVisualAttribute(el)
}

// scale converts character cell geometry to pixels. Coordinate carries the
// cell size itself and is left alone.
func (r *rewriter) scale(el *element) {
	if el.is("Coordinate") {
		return
	}
	for i := range el.attrs {
		attr := &el.attrs[i]
		key := attr.Name.Local
		if attr.Name.Space != "" || !isGeometry(key) {
			continue
		}
		n, err := strconv.Atoi(attr.Value)
		if err != nil || n <= 0 {
			continue
		}
		if strings.HasSuffix(key, "Width") || strings.HasSuffix(key, "XPosition") {
			n *= r.opts.CellWidth
		} else {
			n *= r.opts.CellHeight
		}
		attr.Value = strconv.Itoa(n)
	}
}

func isGeometry(key string) bool {
	return strings.HasSuffix(key, "Position") ||
		strings.HasSuffix(key, "Width") ||
		strings.HasSuffix(key, "Height") ||
		key == "DistanceBetweenRecords"
}

func (r *rewriter) subclass(el *element) {
	parent, ok := el.lookup("ParentModule")
	if !ok || parent == "" || parent == r.name {
		return
	}
	if move, ok := libraryMoves[parent]; ok {
		el.set("ParentModule", move[0])
		el.set("ParentFilename", move[1])
		setParentType(el)
		return
	}
	if !slices.Contains(knownLibraries, parent) {
		r.unknown[parent] = true
	}
}

func (r *rewriter) rootWindow(el *element) {
	if el.is("Window") && el.get("Name") == rootWindow {
		setParentType(el)
		setAll(el, rootWindowAttrs)
		el.remove(rootWindowDropped...)
	}
	if el.get("WindowName") == rootWindow {
		el.set("WindowName", mainWindow)
	}
}

func (r *rewriter) attachLibraries(el *element) {
	if el != r.module || len(el.descendants("AttachedLibrary")) > 0 {
		return
	}
	var firstBlock *element
	for _, child := range el.elements() {
		if child.is("Block") {
			firstBlock = child
			break
		}
	}
	if firstBlock == nil {
		return
	}
	for _, lib := range attachedLibraries {
		el.insertBefore(newElement("AttachedLibrary",
			"LibrarySource", "File",
			"Name", lib,
			"LibraryLocation", lib,
		), firstBlock)
		r.report.AttachedLibraries = append(r.report.AttachedLibraries, lib)
	}
}

func (r *rewriter) fixItemType(el *element) {
	if !el.is("Item") {
		return
	}
	if fixed, ok := itemTypeFixes[el.get("ItemType")]; ok {
		el.set("ItemType", fixed)
	}
}

func (r *rewriter) trimSpaces(el *element) {
	var key string
	switch {
	case el.is("ProgramUnit"):
		key = "ProgramUnitText"
	case el.is("Trigger"):
		key = "TriggerText"
	default:
		return
	}
	if text := el.get(key); text != "" {
		el.set(key, trailingBlanks.ReplaceAllString(text, "$1"))
	}
}

func (r *rewriter) visualAttribute(el *element) {
	for _, key := range visualAttributeRefs {
		if renamed, ok := renamedVisualAttributes[el.get(key)]; ok {
			el.set(key, renamed)
			r.used[renamed] = true
		}
	}
	if el.is("Block") {
		el.set("RecordVisualAttributeGroupName", selectAttribute)
		r.used[selectAttribute] = true
	}
	if !el.is("VisualAttribute") {
		return
	}
	name := el.get("Name")
	if renamed, ok := renamedVisualAttributes[name]; ok {
		name = renamed
		el.set("Name", name)
		el.set("ParentName", name)
	}
	r.exists[name] = true
	setParentType(el)
	if parent := el.get("ParentModule"); parent == baseLibrary || parent == "G_LIB" {
		el.set("ParentModule", baseLibrary)
		el.set("ParentModuleType", libraryType)
		el.set("ParentFilename", baseLibraryFile)
	}
}

func (r *rewriter) promptVisualAttribute(el *element) {
	if el.has("Prompt") {
		if current, ok := el.lookup("PromptVisualAttributeName"); !ok || current == "DEFAULT" {
			el.set("PromptVisualAttributeName", promptAttribute)
			el.remove(promptFonts...)
			r.used[promptAttribute] = true
		}
	}
	if el.has("VisualAttributeName") {
		el.remove(itemFonts...)
	}
}

// missingVisualAttributes subclasses every referenced but undefined visual
// attribute from the library, ahead of the first window.
func (r *rewriter) missingVisualAttributes() {
	for _, name := range defaultUsedVisualAttributes {
		r.used[name] = true
	}
	var missing []string
	for name := range r.used {
		if !r.exists[name] {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)

	var firstWindow *element
	for _, child := range r.module.elements() {
		if child.is("Window") {
			firstWindow = child
			break
		}
	}
	for _, name := range missing {
		va := newElement("VisualAttribute",
			"Name", name,
			"ParentName", name,
			"DirtyInfo", "true",
		)
		setParentType(va)
		va.set("ParentModule", baseLibrary)
		va.set("ParentModuleType", libraryType)
		r.module.insertBefore(va, firstWindow)
		r.report.AddedVisualAttributes = append(r.report.AddedVisualAttributes, name)
	}
}

// requiredParameters adds the module parameters every Forms 11 module
// inherits from the library, right after the last canvas or block.
func (r *rewriter) requiredParameters() {
	present := map[string]bool{}
	for _, param := range r.module.descendants("ModuleParameter") {
		present[param.get("Name")] = true
	}

	var anchor *element
	for _, kind := range []string{"Canvas", "Block"} {
		for _, child := range r.module.elements() {
			if child.is(kind) {
				anchor = child
			}
		}
		if anchor != nil {
			break
		}
	}
	var before *element
	if anchor != nil {
		before = r.module.nextElement(anchor)
	}

	for _, name := range requiredParameters {
		if present[name] {
			continue
		}
		r.module.insertBefore(newElement("ModuleParameter",
			"Name", name,
			"ParentName", name,
			"ParentType", "13",
			"ParentModule", baseLibrary,
			"ParentFilename", baseLibraryFile,
			"ParentModuleType", libraryType,
		), before)
		r.report.AddedParameters = append(r.report.AddedParameters, name)
	}
}

func setParentType(el *element) {
	if code, ok := parentTypes[el.name.Local]; ok {
		el.set("ParentType", code)
	}
}

func setAll(el *element, pairs [][2]string) {
	for _, pair := range pairs {
		el.set(pair[0], pair[1])
	}
}
