package transform

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"forms2xml/internal/codec"
)

// element is one node of a module document. Names keep their raw prefix in
// Space so serialization reproduces the source namespaces verbatim.
type element struct {
	name  xml.Name
	attrs []xml.Attr
	// children holds *element, xml.CharData, xml.Comment, xml.ProcInst and
	// xml.Directive values in document order.
	children []any
}

type document struct {
	prolog []any
	root   *element
	epilog []any
}

func newElement(local string, pairs ...string) *element {
	el := &element{name: xml.Name{Local: local}}
	for i := 0; i+1 < len(pairs); i += 2 {
		el.set(pairs[i], pairs[i+1])
	}
	return el
}

func (e *element) is(local string) bool {
	return e.name.Local == local
}

func (e *element) lookup(key string) (string, bool) {
	for _, attr := range e.attrs {
		if attr.Name.Space == "" && attr.Name.Local == key {
			return attr.Value, true
		}
	}
	return "", false
}

func (e *element) get(key string) string {
	value, _ := e.lookup(key)
	return value
}

func (e *element) has(key string) bool {
	_, ok := e.lookup(key)
	return ok
}

// set overwrites key in place or appends it, keeping attribute order stable.
func (e *element) set(key, value string) {
	for i := range e.attrs {
		if e.attrs[i].Name.Space == "" && e.attrs[i].Name.Local == key {
			e.attrs[i].Value = value
			return
		}
	}
	e.attrs = append(e.attrs, xml.Attr{Name: xml.Name{Local: key}, Value: value})
}

func (e *element) remove(keys ...string) {
	kept := e.attrs[:0]
	for _, attr := range e.attrs {
		if attr.Name.Space == "" && slices.Contains(keys, attr.Name.Local) {
			continue
		}
		kept = append(kept, attr)
	}
	e.attrs = kept
}

func (e *element) elements() []*element {
	out := make([]*element, 0, len(e.children))
	for _, child := range e.children {
		if el, ok := child.(*element); ok {
			out = append(out, el)
		}
	}
	return out
}

// descendants returns every element below e named local, in document order.
func (e *element) descendants(local string) []*element {
	var out []*element
	e.walk(func(el *element) {
		if el != e && el.is(local) {
			out = append(out, el)
		}
	})
	return out
}

// walk visits e and its descendants depth first. fn runs before the
// children of an element are listed, so elements it inserts are visited too.
func (e *element) walk(fn func(*element)) {
	fn(e)
	for _, child := range e.elements() {
		child.walk(fn)
	}
}

// insertBefore places child ahead of ref, or at the end when ref is nil or
// not a child of e.
func (e *element) insertBefore(child, ref *element) {
	if ref != nil {
		for i, existing := range e.children {
			if existing == ref {
				e.children = slices.Insert(e.children, i, any(child))
				return
			}
		}
	}
	e.children = append(e.children, child)
}

func (e *element) removeChild(child *element) {
	for i, existing := range e.children {
		if existing == child {
			e.children = slices.Delete(e.children, i, i+1)
			return
		}
	}
}

// nextElement returns the element sibling following child, or nil.
func (e *element) nextElement(child *element) *element {
	found := false
	for _, existing := range e.children {
		el, ok := existing.(*element)
		if !ok {
			continue
		}
		if found {
			return el
		}
		found = el == child
	}
	return nil
}

func parseDocument(r io.Reader) (*document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = codec.CharsetReader

	doc := &document{}
	var stack []*element
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if doc.root != nil {
					return nil, fmt.Errorf("multiple root elements (%s, %s)", qualified(doc.root.name), qualified(t.Name))
				}
				doc.root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].name != t.Name {
				return nil, fmt.Errorf("unexpected closing tag </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		default:
			tok = xml.CopyToken(tok)
			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, tok)
			case doc.root == nil:
				doc.prolog = append(doc.prolog, tok)
			default:
				doc.epilog = append(doc.epilog, tok)
			}
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element <%s>", qualified(stack[len(stack)-1].name))
	}
	if doc.root == nil {
		return nil, errors.New("no root element")
	}
	return doc, nil
}

// writeTo serializes the document as UTF-8. encoding/xml's Encoder is not
// used because it rewrites prefixed names and xmlns attributes.
func (d *document) writeTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	for _, tok := range d.prolog {
		if pi, ok := tok.(xml.ProcInst); ok && pi.Target == "xml" {
			continue
		}
		if text, ok := tok.(xml.CharData); ok && strings.TrimSpace(string(text)) == "" {
			continue
		}
		writeToken(bw, tok)
		bw.WriteByte('\n')
	}
	writeElement(bw, d.root)
	for _, tok := range d.epilog {
		writeToken(bw, tok)
	}
	bw.WriteByte('\n')
	return bw.Flush()
}

func writeElement(bw *bufio.Writer, el *element) {
	bw.WriteByte('<')
	bw.WriteString(qualified(el.name))
	for _, attr := range el.attrs {
		bw.WriteByte(' ')
		bw.WriteString(qualified(attr.Name))
		bw.WriteString(`="`)
		_ = xml.EscapeText(bw, []byte(attr.Value))
		bw.WriteByte('"')
	}
	if len(el.children) == 0 {
		bw.WriteString("/>")
		return
	}
	bw.WriteByte('>')
	for _, child := range el.children {
		if nested, ok := child.(*element); ok {
			writeElement(bw, nested)
			continue
		}
		writeToken(bw, child)
	}
	bw.WriteString("</")
	bw.WriteString(qualified(el.name))
	bw.WriteByte('>')
}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func writeToken(bw *bufio.Writer, tok any) {
	switch t := tok.(type) {
	case xml.CharData:
		textEscaper.WriteString(bw, string(t))
	case xml.Comment:
		bw.WriteString("<!--")
		bw.Write(t)
		bw.WriteString("-->")
	case xml.ProcInst:
		bw.WriteString("<?")
		bw.WriteString(t.Target)
		if len(t.Inst) > 0 {
			bw.WriteByte(' ')
			bw.Write(t.Inst)
		}
		bw.WriteString("?>")
	case xml.Directive:
		bw.WriteString("<!")
		bw.Write(t)
		bw.WriteByte('>')
	}
}

func qualified(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}
