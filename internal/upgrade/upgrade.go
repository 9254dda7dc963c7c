package upgrade

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"forms2xml/internal/client"
	"forms2xml/internal/codec"
	"forms2xml/internal/fileutil"
	"forms2xml/internal/logging"
	"forms2xml/internal/transform"
)

// DefaultSuffix marks upgraded modules written next to their source.
const DefaultSuffix = "-v11"

var (
	// ErrSameFile rejects runs whose destination would overwrite the source.
	ErrSameFile = errors.New("destination is the source module")
	// ErrNotBinary rejects sources that are already module XML.
	ErrNotBinary = errors.New("source is not a binary module")
)

// Converter turns a module body into its other form. *client.Client
// satisfies it.
type Converter interface {
	Submit(ctx context.Context, body []byte, dst string, w io.Writer) (client.Result, error)
}

// Options controls an upgrade run.
type Options struct {
	// Transform applies the Forms 11 rewrite between dump and compile.
	Transform bool
	// Suffix names the destination when Run is given none.
	Suffix string
	// KeepXML leaves the dumped XML next to the source and, when
	// transforming, the rewritten XML next to the destination.
	KeepXML bool
	Layout  transform.Options
}

// Result describes a finished upgrade.
type Result struct {
	Source      string
	Destination string
	// DumpBytes is the size of the XML the source gateway produced.
	DumpBytes int64
	Bytes     int64
	// Report is nil when the rewrite was skipped.
	Report *transform.Report
}

// Upgrader dumps Forms 6 modules to XML through one gateway, optionally
// rewrites the XML and compiles it through another.
type Upgrader struct {
	source Converter
	target Converter
	opts   Options
	logger *slog.Logger
}

// New builds an Upgrader. A nil target reuses source for compiling.
func New(source, target Converter, opts Options, logger *slog.Logger) *Upgrader {
	if target == nil {
		target = source
	}
	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	return &Upgrader{
		source: source,
		target: target,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "upgrade"),
	}
}

// DefaultDest names the upgraded module for src: the same directory and
// base name with suffix inserted before the .fmb extension.
func DefaultDest(src, suffix string) string {
	base := src
	if ext := filepath.Ext(src); strings.EqualFold(ext, ".fmb") {
		base = strings.TrimSuffix(src, ext)
	}
	return base + suffix + ".fmb"
}

// Run upgrades the module at src into dst. An empty dst selects
// DefaultDest. dst is replaced only after every stage succeeded.
func (u *Upgrader) Run(ctx context.Context, src, dst string) (Result, error) {
	if dst == "" {
		dst = DefaultDest(src, u.opts.Suffix)
	}
	result := Result{Source: src, Destination: dst}
	if err := checkDistinct(src, dst); err != nil {
		return result, err
	}

	body, err := os.ReadFile(src)
	if err != nil {
		return result, fmt.Errorf("read source: %w", err)
	}
	if client.SniffMediaType(body) == codec.MediaTypeXML {
		return result, fmt.Errorf("%s: %w", src, ErrNotBinary)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return result, fmt.Errorf("create output: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	defer tmp.Close()

	u.logger.Info("upgrading module",
		logging.String("src", src),
		logging.String("dst", dst),
		logging.Bool("transform", u.opts.Transform),
	)

	dumpR, dumpW := io.Pipe()
	editR, editW := io.Pipe()
	var stageErrs [3]error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := u.source.Submit(gctx, body, "", dumpW)
		result.DumpBytes = res.Bytes
		if err != nil {
			err = fmt.Errorf("dump %s: %w", src, err)
		}
		dumpW.CloseWithError(err)
		stageErrs[0] = err
		return err
	})

	g.Go(func() error {
		var in io.Reader = dumpR
		var out io.Writer = editW
		if u.opts.KeepXML {
			if f := u.sideFile(xmlPath(src)); f != nil {
				defer f.Close()
				in = io.TeeReader(dumpR, f)
			}
			if u.opts.Transform {
				if f := u.sideFile(xmlPath(dst)); f != nil {
					defer f.Close()
					out = io.MultiWriter(editW, f)
				}
			}
		}

		var err error
		if u.opts.Transform {
			var report transform.Report
			report, err = transform.Process(out, in, u.opts.Layout)
			result.Report = &report
			if err != nil {
				err = fmt.Errorf("transform %s: %w", src, err)
			}
		} else {
			_, err = io.Copy(out, in)
		}
		dumpR.CloseWithError(err)
		editW.CloseWithError(err)
		stageErrs[1] = err
		return err
	})

	g.Go(func() error {
		xml, err := io.ReadAll(editR)
		editR.CloseWithError(err)
		if err == nil {
			var res client.Result
			res, err = u.target.Submit(gctx, xml, "", tmp)
			result.Bytes = res.Bytes
			if err != nil {
				err = fmt.Errorf("compile %s: %w", dst, err)
			}
		}
		stageErrs[2] = err
		return err
	})

	_ = g.Wait()
	// Later stages fail with the error an earlier stage closed its pipe with.
	if err := cmp.Or(stageErrs[:]...); err != nil {
		return result, err
	}

	if err := tmp.Close(); err != nil {
		return result, fmt.Errorf("write output: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return result, fmt.Errorf("write output: %w", err)
	}
	if err := fileutil.MoveFile(tmpPath, dst); err != nil {
		return result, fmt.Errorf("move output into place: %w", err)
	}

	attrs := []logging.Attr{
		logging.String("src", src),
		logging.String("dst", dst),
		logging.Int64("xml_bytes", result.DumpBytes),
		logging.Int64("bytes", result.Bytes),
	}
	if result.Report != nil && len(result.Report.UnknownParents) > 0 {
		logging.WarnWithContext(u.logger, "module subclasses unknown libraries",
			"unknown_parent",
			logging.String("src", src),
			logging.String("libraries", strings.Join(result.Report.UnknownParents, ",")),
			logging.String(logging.FieldImpact, "objects keep their Forms 6 parent"),
			logging.String(logging.FieldErrorHint, "add the libraries to the upgrade rules or fix the parents by hand"),
		)
	}
	u.logger.Info("module upgraded", logging.Args(attrs...)...)
	return result, nil
}

// sideFile creates path for a kept XML copy. Failures only warn.
func (u *Upgrader) sideFile(path string) *os.File {
	f, err := os.Create(path)
	if err != nil {
		logging.WarnWithContext(u.logger, "cannot keep module XML", "keep_xml",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "upgrade continues without the XML copy"),
		)
		return nil
	}
	return f
}

func xmlPath(module string) string {
	if ext := filepath.Ext(module); strings.EqualFold(ext, ".fmb") {
		module = strings.TrimSuffix(module, ext)
	}
	return module + ".xml"
}

func checkDistinct(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return fmt.Errorf("%s: %w", dst, ErrSameFile)
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return nil
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if os.SameFile(srcInfo, dstInfo) {
		return fmt.Errorf("%s: %w", dst, ErrSameFile)
	}
	return nil
}
