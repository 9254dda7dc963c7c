package testsupport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"forms2xml/internal/codec"
	"forms2xml/internal/services"
)

// FakeModuleName is the FormModule name in the fake codec's XML form.
const FakeModuleName = "FAKE_MODULE"

// BrokenMarker makes FakeCodec reject any source that starts with it.
const BrokenMarker = "BROKEN"

// FakeCodec is an in-memory codec. Its XML form wraps the module bytes in
// base64 inside a FormModule element, so a binary -> XML -> binary round trip
// is lossless and the XML survives the Forms 11 rewrite.
type FakeCodec struct {
	// SaveErr, when set, is returned by every Save.
	SaveErr error
	// WriteErr, when set, is returned by every WriteXML.
	WriteErr error

	mu    sync.Mutex
	calls []string
	open  atomic.Int64
}

type fakeModule struct {
	XMLName xml.Name `xml:"Module"`
	Payload string   `xml:"FormModule>Payload"`
}

type fakeDocument struct {
	owner  *FakeCodec
	data   []byte
	closed atomic.Bool
}

func (d *fakeDocument) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		d.owner.open.Add(-1)
	}
	return nil
}

// NewFakeCodec returns a ready fake.
func NewFakeCodec() *FakeCodec {
	return &FakeCodec{}
}

// OpenDocuments reports how many parsed documents have not been closed.
func (c *FakeCodec) OpenDocuments() int64 {
	return c.open.Load()
}

// Calls returns the operations invoked so far, in order.
func (c *FakeCodec) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *FakeCodec) record(op string) {
	c.mu.Lock()
	c.calls = append(c.calls, op)
	c.mu.Unlock()
}

func (c *FakeCodec) newDocument(data []byte) *fakeDocument {
	c.open.Add(1)
	return &fakeDocument{owner: c, data: data}
}

// ParseBinary implements codec.Codec.
func (c *FakeCodec) ParseBinary(ctx context.Context, path string) (codec.Document, error) {
	c.record("ParseBinary")
	data, err := readSource(ctx, path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(BrokenMarker)) {
		return nil, services.Wrap(services.ErrConversion, "fake", "parse binary", "FRM-10043: cannot open module", nil)
	}
	return c.newDocument(data), nil
}

// ParseXML implements codec.Codec.
func (c *FakeCodec) ParseXML(ctx context.Context, path string) (codec.Document, error) {
	c.record("ParseXML")
	data, err := readSource(ctx, path)
	if err != nil {
		return nil, err
	}
	var module fakeModule
	if err := xml.Unmarshal(data, &module); err != nil {
		return nil, services.Wrap(services.ErrConversion, "fake", "parse xml", "malformed module XML", err)
	}
	payload, err := base64.StdEncoding.DecodeString(module.Payload)
	if err != nil {
		return nil, services.Wrap(services.ErrConversion, "fake", "parse xml", "bad payload", err)
	}
	return c.newDocument(payload), nil
}

// WriteXML implements codec.Codec.
func (c *FakeCodec) WriteXML(ctx context.Context, doc codec.Document, w io.Writer) (int64, error) {
	c.record("WriteXML")
	d, err := c.document(doc)
	if err != nil {
		return 0, err
	}
	if c.WriteErr != nil {
		return 0, c.WriteErr
	}
	n, err := w.Write(EncodeXML(d.data))
	return int64(n), err
}

// Save implements codec.Codec.
func (c *FakeCodec) Save(ctx context.Context, doc codec.Document, path string) error {
	c.record("Save")
	d, err := c.document(doc)
	if err != nil {
		return err
	}
	if c.SaveErr != nil {
		return c.SaveErr
	}
	if err := os.WriteFile(path, d.data, 0o644); err != nil {
		return services.Wrap(services.ErrResource, "fake", "save", path, err)
	}
	return nil
}

func (c *FakeCodec) document(doc codec.Document) (*fakeDocument, error) {
	d, ok := doc.(*fakeDocument)
	if !ok || d.closed.Load() {
		return nil, fmt.Errorf("fake codec: unusable document %T", doc)
	}
	return d, nil
}

// EncodeXML renders module bytes in the fake codec's XML form.
func EncodeXML(module []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<Module version="60000000"><FormModule Name="`)
	buf.WriteString(FakeModuleName)
	buf.WriteString(`"><Payload>`)
	buf.WriteString(base64.StdEncoding.EncodeToString(module))
	buf.WriteString("</Payload></FormModule></Module>\n")
	return buf.Bytes()
}

func readSource(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "fake", "read source", path, err)
	}
	return data, nil
}

var _ codec.Codec = (*FakeCodec)(nil)
