package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"forms2xml/internal/fileutil"
	"forms2xml/internal/logging"
	"forms2xml/internal/services"
)

const (
	workDirPrefix = "forms2xml-work-"
	moduleName    = "module"
	paramFileName = "frmxml2f.par"
	outputTail    = 2048
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir string, env []string, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir string, env []string, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Env = env
	cmd.WaitDelay = 5 * time.Second
	setParentDeathSignal(cmd)
	return cmd.CombinedOutput()
}

// document is the XML form of a module kept in a private work directory.
// Both parse directions normalize to XML; the binary form only exists
// transiently inside Save.
type document struct {
	dir     string
	xmlPath string
	root    string
}

func (d *document) Close() error {
	if d == nil || d.dir == "" {
		return nil
	}
	err := os.RemoveAll(d.dir)
	d.dir = ""
	return err
}

// ParseBinary dumps the module at path to XML with frmf2xml.
func (s *Session) ParseBinary(ctx context.Context, path string) (Document, error) {
	doc, err := s.newDocument()
	if err != nil {
		return nil, err
	}
	input := filepath.Join(doc.dir, moduleName+".fmb")
	if err := fileutil.CopyFile(path, input); err != nil {
		_ = doc.Close()
		return nil, services.Wrap(services.ErrResource, "codec", "parse binary", "stage module", err)
	}

	if err := s.run(ctx, doc.dir, s.f2x, []string{"OVERWRITE=YES", filepath.Base(input)}); err != nil {
		_ = doc.Close()
		return nil, err
	}
	if err := os.Remove(input); err != nil {
		_ = doc.Close()
		return nil, services.Wrap(services.ErrResource, "codec", "parse binary", "remove staged module", err)
	}
	output, err := findOutput(doc.dir, ".xml")
	if err != nil {
		_ = doc.Close()
		return nil, services.Wrap(services.ErrConversion, "codec", "parse binary", "frmf2xml produced no XML", err)
	}
	root, err := checkXML(output)
	if err != nil {
		_ = doc.Close()
		return nil, services.Wrap(services.ErrConversion, "codec", "parse binary", "frmf2xml output is not XML", err)
	}
	doc.xmlPath = output
	doc.root = root
	return doc, nil
}

// ParseXML validates the XML module at path and keeps a private copy for Save.
func (s *Session) ParseXML(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := checkXML(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrResource, "codec", "parse xml", "open source", err)
		}
		return nil, services.Wrap(services.ErrConversion, "codec", "parse xml", "malformed module XML", err)
	}
	doc, err := s.newDocument()
	if err != nil {
		return nil, err
	}
	doc.xmlPath = filepath.Join(doc.dir, moduleName+"_fmb.xml")
	doc.root = root
	if err := fileutil.CopyFile(path, doc.xmlPath); err != nil {
		_ = doc.Close()
		return nil, services.Wrap(services.ErrResource, "codec", "parse xml", "stage module", err)
	}
	return doc, nil
}

// WriteXML streams the XML form of doc to w.
func (s *Session) WriteXML(ctx context.Context, doc Document, w io.Writer) (int64, error) {
	d, err := asDocument(doc)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	src, err := os.Open(d.xmlPath)
	if err != nil {
		return 0, services.Wrap(services.ErrResource, "codec", "write xml", "open document", err)
	}
	defer src.Close()
	n, err := io.Copy(w, src)
	if err != nil {
		return n, services.Wrap(services.ErrResource, "codec", "write xml", "copy document", err)
	}
	return n, nil
}

// Save compiles doc with frmxml2f and writes the module to path.
func (s *Session) Save(ctx context.Context, doc Document, path string) error {
	d, err := asDocument(doc)
	if err != nil {
		return err
	}
	params, err := writeParamFile(d.dir, "USERID="+s.opts.DBConn)
	if err != nil {
		return services.Wrap(services.ErrResource, "codec", "save", "write parameter file", err)
	}
	defer os.Remove(params)

	if err := s.run(ctx, d.dir, s.x2f, []string{
		"OVERWRITE=YES",
		"PARFILE=" + filepath.Base(params),
		filepath.Base(d.xmlPath),
	}); err != nil {
		return err
	}
	output, err := findOutput(d.dir, ".fmb")
	if err != nil {
		return services.Wrap(services.ErrConversion, "codec", "save", "frmxml2f produced no module", err)
	}
	if err := fileutil.MoveFile(output, path); err != nil {
		return services.Wrap(services.ErrResource, "codec", "save", fmt.Sprintf("write %s", path), err)
	}
	return nil
}

// writeParamFile stores tool parameters that must stay out of the process
// argument list, readable only by the gateway user.
func writeParamFile(dir string, lines ...string) (string, error) {
	path := filepath.Join(dir, paramFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(f, strings.Join(lines, "\n")+"\n"); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *Session) newDocument() (*document, error) {
	dir, err := os.MkdirTemp(s.opts.WorkDir, workDirPrefix)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "codec", "workspace", "create work directory", err)
	}
	return &document{dir: dir}, nil
}

func (s *Session) run(ctx context.Context, dir, binary string, args []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	out, err := s.exec.Run(ctx, dir, s.env, binary, args)
	logger := logging.WithContext(ctx, s.logger)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", filepath.Base(binary), ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrResource, "codec", filepath.Base(binary), "tool unavailable", err)
		}
		detail := tail(string(out), outputTail)
		logger.Debug("converter tool failed",
			logging.String("tool", filepath.Base(binary)),
			logging.String("output", detail),
			logging.Error(err),
		)
		if detail == "" {
			detail = err.Error()
		}
		return services.Wrap(services.ErrConversion, "codec", filepath.Base(binary), detail, err)
	}
	logger.Debug("converter tool finished",
		logging.String("tool", filepath.Base(binary)),
		logging.Duration("duration", time.Since(start)),
	)
	return nil
}

func asDocument(doc Document) (*document, error) {
	d, ok := doc.(*document)
	if !ok || d == nil || d.dir == "" {
		return nil, services.Wrap(services.ErrConversion, "codec", "document", "document not produced by this session or already closed", nil)
	}
	return d, nil
}

// findOutput returns the newest regular file in dir carrying suffix.
func findOutput(dir, suffix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var (
		best    string
		bestMod time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasSuffix(strings.ToLower(name), suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, name)
			bestMod = info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no %s file in %s", suffix, dir)
	}
	return best, nil
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
