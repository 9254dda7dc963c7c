package codec

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// checkXML reports whether path holds a well-formed XML document and returns
// the local name of its root element. Declared encodings such as ISO-8859-2,
// which Forms exports commonly use, are decoded through x/text.
func checkXML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return checkXMLReader(f)
}

func checkXMLReader(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = CharsetReader
	var root string
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if root != "" {
					return "", fmt.Errorf("multiple root elements (%s, %s)", root, t.Name.Local)
				}
				root = t.Name.Local
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if root == "" {
		return "", errors.New("no root element")
	}
	return root, nil
}

// CharsetReader decodes non UTF-8 module XML for encoding/xml decoders. It
// resolves the declared label through the WHATWG encoding index.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
