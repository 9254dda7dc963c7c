package codec

import (
	"context"
	"io"
	"strings"

	"forms2xml/internal/config"
)

const (
	// MediaTypeBinary is the media type of compiled Oracle Forms modules.
	MediaTypeBinary = "application/x-oracle-forms"
	// MediaTypeXML is the media type of the XML representation.
	MediaTypeXML = "application/xml"
)

// Document is a fully realized module held by a codec between parse and
// output. Callers must Close it.
type Document interface {
	Close() error
}

// Codec converts Oracle Forms modules between the binary and XML forms.
//
// Parse operations realize the whole document before returning. Save only
// targets named files; WriteXML may target any writer.
type Codec interface {
	ParseBinary(ctx context.Context, path string) (Document, error)
	ParseXML(ctx context.Context, path string) (Document, error)
	WriteXML(ctx context.Context, doc Document, w io.Writer) (int64, error)
	Save(ctx context.Context, doc Document, path string) error
}

// Options describes the Oracle Forms environment a session runs in.
type Options struct {
	OracleHome string
	FormsPath  string
	Display    string
	DBConn     string
	F2XBinary  string
	X2FBinary  string
	// WorkDir holds the per-document scratch directories.
	WorkDir string
}

// OptionsFromConfig extracts session options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{
		OracleHome: strings.TrimSpace(cfg.Forms.OracleHome),
		FormsPath:  strings.TrimSpace(cfg.Forms.FormsPath),
		Display:    strings.TrimSpace(cfg.Forms.Display),
		DBConn:     strings.TrimSpace(cfg.Forms.DBConn),
		F2XBinary:  strings.TrimSpace(cfg.Forms.F2XBinary),
		X2FBinary:  strings.TrimSpace(cfg.Forms.X2FBinary),
		WorkDir:    strings.TrimSpace(cfg.Paths.StagingDir),
	}
}
