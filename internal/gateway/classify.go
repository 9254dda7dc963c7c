package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"forms2xml/internal/codec"
	"forms2xml/internal/services"
)

// Direction is the conversion direction of a request.
type Direction int

const (
	BinaryToXML Direction = iota
	XMLToBinary
)

func (d Direction) String() string {
	if d == XMLToBinary {
		return "xml_to_binary"
	}
	return "binary_to_xml"
}

// SourceType is the media type of the document the request supplies.
func (d Direction) SourceType() string {
	if d == XMLToBinary {
		return codec.MediaTypeXML
	}
	return codec.MediaTypeBinary
}

// TargetType is the media type of the produced document.
func (d Direction) TargetType() string {
	if d == XMLToBinary {
		return codec.MediaTypeBinary
	}
	return codec.MediaTypeXML
}

// SourceSuffix is the file suffix used when staging the source.
func (d Direction) SourceSuffix() string {
	if d == XMLToBinary {
		return ".fmb.xml"
	}
	return ".fmb"
}

// TargetSuffix is the file suffix used when staging the result.
func (d Direction) TargetSuffix() string {
	if d == XMLToBinary {
		return ".fmb"
	}
	return ".fmb.xml"
}

// SourceMode says where the source document comes from.
type SourceMode int

const (
	// Inline sources arrive as the request body.
	Inline SourceMode = iota
	// ByPath sources are files named by the src query parameter.
	ByPath
)

func (m SourceMode) String() string {
	if m == ByPath {
		return "by_path"
	}
	return "inline"
}

// ConversionRequest is the classified intent of one HTTP request.
type ConversionRequest struct {
	Direction  Direction
	Mode       SourceMode
	SourcePath string
	DestPath   string
}

// Violation is a request the gateway refuses before any conversion starts.
type Violation struct {
	// Method is set when the HTTP method itself was rejected.
	Method string
	Reason string
}

func (v *Violation) Error() string {
	return v.Reason
}

// Unwrap tags every violation as a protocol error.
func (v *Violation) Unwrap() error {
	return services.ErrProtocol
}

// Status is 403 for a rejected method and 500 for any other malformed
// request, which existing clients rely on.
func (v *Violation) Status() int {
	if v.Method != "" {
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

func methodViolation(method string) *Violation {
	return &Violation{
		Method: method,
		Reason: fmt.Sprintf("only POST and GET are allowed! (got %s)", method),
	}
}

func requestViolation(format string, args ...any) *Violation {
	return &Violation{Reason: fmt.Sprintf(format, args...)}
}

// Classify derives the conversion intent from the method, headers and raw
// query of a request. It never touches the filesystem.
//
// A POST converts XML to binary when Content-Type is the XML media type or
// Accept is the binary media type; either one is enough. A GET converts XML
// to binary when src ends in ".xml".
func Classify(method string, header http.Header, rawQuery string) (ConversionRequest, error) {
	query := ParseQuery(rawQuery)
	dst, _ := query.Get("dst")

	switch method {
	case http.MethodPost:
		req := ConversionRequest{Direction: BinaryToXML, Mode: Inline, DestPath: dst}
		if mediaType(header.Get("Content-Type")) == codec.MediaTypeXML ||
			mediaType(header.Get("Accept")) == codec.MediaTypeBinary {
			req.Direction = XMLToBinary
		}
		return req, nil
	case http.MethodGet:
		src, ok := query.Get("src")
		if !ok || strings.TrimSpace(src) == "" {
			return ConversionRequest{}, requestViolation("missing src parameter")
		}
		req := ConversionRequest{Direction: BinaryToXML, Mode: ByPath, SourcePath: src, DestPath: dst}
		if strings.HasSuffix(strings.ToLower(src), ".xml") {
			req.Direction = XMLToBinary
		}
		return req, nil
	default:
		return ConversionRequest{}, methodViolation(method)
	}
}

// mediaType strips parameters and case from a header value.
func mediaType(value string) string {
	value, _, _ = strings.Cut(value, ";")
	return strings.ToLower(strings.TrimSpace(value))
}
