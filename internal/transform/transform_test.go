package transform

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"forms2xml/internal/services"
)

const sampleModule = `<?xml version="1.0" encoding="UTF-8"?>
<!-- exported by frmf2xml -->
<Module version="60000000" xmlns="http://xmlns.oracle.com/Forms">
  <FormModule Name="ORDERS" RuntimeComp="5.0" ConsoleWindow="ROOT_WINDOW">
    <Coordinate CharacterCellWidth="7" CharacterCellHeight="14" CoordinateSystem="Character"/>
    <Alert Name="KERDEZ_ALERT"/>
    <Alert Name="KEEP_ALERT"/>
    <Block Name="B1" RecordVisualAttributeGroupName="ITEM_SELECT">
      <Item Name="I1" ItemType="Check Box" XPosition="2" YPosition="3" Width="10" Height="1" Prompt="Id" PromptFontName="Arial" VisualAttributeName="V1" FontName="Arial"/>
      <Trigger Name="WHEN-NEW" ParentModule="G_LIB" TriggerText="begin   &#10;null;&#10;end;"/>
    </Block>
    <Canvas Name="C1" CanvasType="Stacked" Width="40" WindowName="ROOT_WINDOW"/>
    <Canvas Name="C2" CanvasType="Content" Width="40" Height="10" WindowName="ROOT_WINDOW"/>
    <VisualAttribute Name="ITEM_SELECT" ParentModule="G_LIB"/>
    <Window Name="ROOT_WINDOW" Width="80" Height="20" Bevel="Raised" XPosition="0"/>
    <Window Name="W_OTHER" ParentModule="OTHER_LIB"/>
  </FormModule>
</Module>
`

func runSample(t *testing.T, input string, opts Options) (*document, Report, string) {
	t.Helper()
	var out bytes.Buffer
	report, err := Process(&out, strings.NewReader(input), opts)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	doc, err := parseDocument(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("output does not parse: %v\n%s", err, out.String())
	}
	return doc, report, out.String()
}

func formModule(t *testing.T, doc *document) *element {
	t.Helper()
	found := doc.root.descendants("FormModule")
	if len(found) != 1 {
		t.Fatalf("expected one FormModule, got %d", len(found))
	}
	return found[0]
}

func find(t *testing.T, root *element, kind, name string) *element {
	t.Helper()
	for _, el := range root.descendants(kind) {
		if el.get("Name") == name {
			return el
		}
	}
	t.Fatalf("no %s named %s", kind, name)
	return nil
}

func childNames(el *element) []string {
	var out []string
	for _, child := range el.elements() {
		out = append(out, child.name.Local+":"+child.get("Name"))
	}
	return out
}

func attrNames(el *element) []string {
	var out []string
	for _, attr := range el.attrs {
		out = append(out, attr.Name.Local)
	}
	return out
}

func wantAttrs(t *testing.T, el *element, want map[string]string) {
	t.Helper()
	for key, value := range want {
		got, ok := el.lookup(key)
		if !ok {
			t.Fatalf("%s %s: missing %s (attrs %v)", el.name.Local, el.get("Name"), key, attrNames(el))
		}
		if got != value {
			t.Fatalf("%s %s: %s = %q, want %q", el.name.Local, el.get("Name"), key, got, value)
		}
	}
}

func wantAbsent(t *testing.T, el *element, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if el.has(key) {
			t.Fatalf("%s %s: %s should be removed", el.name.Local, el.get("Name"), key)
		}
	}
}

func TestProcessModuleLayout(t *testing.T) {
	doc, report, out := runSample(t, sampleModule, Options{})

	want := []string{
		"Coordinate:",
		"Alert:KEEP_ALERT",
		"AttachedLibrary:BR_PROCEDURE_LIB",
		"Block:B1",
		"Canvas:C1",
		"Canvas:C2",
		"ModuleParameter:TORZSSZAM",
		"ModuleParameter:PRG_AZON",
		"ModuleParameter:BAZON",
		"ModuleParameter:DAZON",
		"VisualAttribute:SELECT",
		"VisualAttribute:NORMAL",
		"VisualAttribute:NORMAL_ITEM",
		"VisualAttribute:NORMAL_PROMPT",
		"Window:W_MAIN",
		"Window:W_OTHER",
	}
	if diff := cmp.Diff(want, childNames(formModule(t, doc))); diff != "" {
		t.Fatalf("FormModule children mismatch (-want +got):\n%s", diff)
	}

	if !strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing XML declaration: %.80s", out)
	}
	if !strings.Contains(out, `<Module version="60000000" xmlns="http://xmlns.oracle.com/Forms">`) {
		t.Fatalf("root element not preserved:\n%s", out)
	}
	if !strings.Contains(out, "<!-- exported by frmf2xml -->") {
		t.Fatalf("prolog comment dropped:\n%s", out)
	}

	wantReport := Report{
		Module:                "ORDERS",
		UnknownParents:        []string{"OTHER_LIB"},
		RemovedAlerts:         []string{"KERDEZ_ALERT"},
		AddedVisualAttributes: []string{"NORMAL", "NORMAL_ITEM", "NORMAL_PROMPT"},
		AddedParameters:       []string{"TORZSSZAM", "PRG_AZON", "BAZON", "DAZON"},
		AttachedLibraries:     []string{"BR_PROCEDURE_LIB"},
	}
	if diff := cmp.Diff(wantReport, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessRewritesAttributes(t *testing.T) {
	doc, _, _ := runSample(t, sampleModule, Options{})
	module := formModule(t, doc)

	wantAttrs(t, module, map[string]string{"ConsoleWindow": "W_MAIN"})

	coord := module.descendants("Coordinate")[0]
	wantAttrs(t, coord, map[string]string{
		"CharacterCellWidth":  "9",
		"CharacterCellHeight": "18",
		"CoordinateSystem":    "Real",
		"RealUnit":            "Pixel",
		"DefaultFontScaling":  "false",
	})

	item := find(t, module, "Item", "I1")
	wantAttrs(t, item, map[string]string{
		"ItemType":                  "Display Item",
		"XPosition":                 "24",
		"YPosition":                 "72",
		"Width":                     "120",
		"Height":                    "24",
		"PromptVisualAttributeName": "NORMAL_PROMPT",
	})
	wantAbsent(t, item, "PromptFontName", "FontName")

	block := find(t, module, "Block", "B1")
	wantAttrs(t, block, map[string]string{"RecordVisualAttributeGroupName": "SELECT"})

	trigger := find(t, module, "Trigger", "WHEN-NEW")
	wantAttrs(t, trigger, map[string]string{
		"ParentModule":   "BR_FLIB",
		"ParentFilename": "BR_FLIB.fmb",
		"ParentType":     "37",
		"TriggerText":    "begin\nnull;\nend;",
	})

	stacked := find(t, module, "Canvas", "C1")
	if diff := cmp.Diff([]string{"Name", "ParentType", "ParentName", "ParentModule", "VisualAttributeName", "ParentFilename", "ParentModuleType"}, attrNames(stacked)); diff != "" {
		t.Fatalf("stacked canvas attributes (-want +got):\n%s", diff)
	}
	wantAttrs(t, stacked, map[string]string{"ParentName": "C_STCK_CONTENT", "ParentType": "4"})

	content := find(t, module, "Canvas", "C2")
	wantAttrs(t, content, map[string]string{
		"CanvasType": "Content",
		"Width":      "480",
		"Height":     "240",
		"WindowName": "W_MAIN",
	})

	selectVA := find(t, module, "VisualAttribute", "SELECT")
	wantAttrs(t, selectVA, map[string]string{
		"ParentName":       "SELECT",
		"ParentType":       "39",
		"ParentModule":     "BR_FLIB",
		"ParentModuleType": "12",
		"ParentFilename":   "BR_FLIB.fmb",
	})

	added := find(t, module, "VisualAttribute", "NORMAL_PROMPT")
	wantAttrs(t, added, map[string]string{
		"ParentName":       "NORMAL_PROMPT",
		"DirtyInfo":        "true",
		"ParentType":       "39",
		"ParentModule":     "BR_FLIB",
		"ParentModuleType": "12",
	})

	window := find(t, module, "Window", "W_MAIN")
	wantAttrs(t, window, map[string]string{
		"ParentType":          "41",
		"ParentModule":        "BR_FLIB",
		"ParentName":          "W_MAIN",
		"VisualAttributeName": "NORMAL",
		"XPosition":           "0",
	})
	wantAbsent(t, window, "Width", "Height", "Bevel")

	param := find(t, module, "ModuleParameter", "BAZON")
	wantAttrs(t, param, map[string]string{
		"ParentName":       "BAZON",
		"ParentType":       "13",
		"ParentModule":     "BR_FLIB",
		"ParentFilename":   "BR_FLIB.fmb",
		"ParentModuleType": "12",
	})
}

func TestProcessCellSize(t *testing.T) {
	doc, _, _ := runSample(t, sampleModule, Options{CellWidth: 8, CellHeight: 16})
	item := find(t, formModule(t, doc), "Item", "I1")
	wantAttrs(t, item, map[string]string{
		"XPosition": "16",
		"YPosition": "48",
		"Width":     "80",
		"Height":    "16",
	})
}

func TestProcessKeepsExistingObjects(t *testing.T) {
	input := `<Module><FormModule Name="M" RuntimeComp="4.0">
<AttachedLibrary Name="OWN_LIB"/>
<Block Name="B"><Item Name="I" ItemType="Check Box"/></Block>
<ModuleParameter Name="TORZSSZAM"/>
<ModuleParameter Name="PRG_AZON"/>
<VisualAttribute Name="NORMAL" ParentModule="M"/>
<Window Name="W"/>
</FormModule></Module>`
	doc, report, _ := runSample(t, input, Options{})
	module := formModule(t, doc)

	if got := len(module.descendants("AttachedLibrary")); got != 1 {
		t.Fatalf("expected the existing library only, got %d", got)
	}
	if diff := cmp.Diff([]string{"BAZON", "DAZON"}, report.AddedParameters); diff != "" {
		t.Fatalf("added parameters (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"NORMAL_ITEM", "NORMAL_PROMPT", "SELECT"}, report.AddedVisualAttributes); diff != "" {
		t.Fatalf("added visual attributes (-want +got):\n%s", diff)
	}
	if report.UnknownParents != nil {
		t.Fatalf("own module counted as unknown parent: %v", report.UnknownParents)
	}
	wantAttrs(t, find(t, module, "Item", "I"), map[string]string{"ItemType": "Check Box"})

	// Parameters follow the last block when the module has no canvas.
	names := childNames(module)
	if names[2] != "ModuleParameter:BAZON" || names[3] != "ModuleParameter:DAZON" {
		t.Fatalf("parameters not placed after the block: %v", names)
	}
}

func TestProcessDecodesDeclaredCharset(t *testing.T) {
	input := "<?xml version=\"1.0\" encoding=\"ISO-8859-2\"?>\n" +
		"<Module><FormModule Name=\"M\" Comment=\"\xe1rv\xedzt\xfbr\xf5\"/></Module>"
	_, _, out := runSample(t, input, Options{})
	if !strings.Contains(out, `Comment="árvíztűrő"`) {
		t.Fatalf("comment not re-encoded as UTF-8:\n%s", out)
	}
	if strings.Contains(out, "ISO-8859-2") {
		t.Fatalf("stale encoding declaration kept:\n%s", out)
	}
}

func TestProcessEscapesOutput(t *testing.T) {
	input := `<Module><FormModule Name="M"><ProgramUnit Name="P" ProgramUnitText="if a &lt; b &amp;&amp; c then  &#10;x := &quot;y&quot;;"/></FormModule></Module>`
	doc, _, out := runSample(t, input, Options{})
	if !strings.Contains(out, "&#xA;") {
		t.Fatalf("newline not escaped in attribute:\n%s", out)
	}
	unit := find(t, formModule(t, doc), "ProgramUnit", "P")
	wantAttrs(t, unit, map[string]string{"ProgramUnitText": "if a < b && c then\nx := \"y\";"})
}

func TestProcessRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "unclosed", input: "<Module><FormModule Name=\"M\">"},
		{name: "mismatched", input: "<Module></FormModule>"},
		{name: "two roots", input: "<Module/><Module/>"},
		{name: "no form module", input: "<Module><MenuModule Name=\"M\"/></Module>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Process(&out, strings.NewReader(tt.input), Options{})
			if err == nil {
				t.Fatalf("expected error, wrote:\n%s", out.String())
			}
			if !errors.Is(err, services.ErrConversion) {
				t.Fatalf("expected conversion failure, got %v", err)
			}
			if out.Len() != 0 {
				t.Fatalf("output written on failure: %q", out.String())
			}
		})
	}
}
