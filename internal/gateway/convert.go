package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"forms2xml/internal/codec"
	"forms2xml/internal/fileutil"
	"forms2xml/internal/logging"
	"forms2xml/internal/services"
	"forms2xml/internal/staging"
)

// ResponseSink is the live HTTP response a result may stream into.
type ResponseSink interface {
	// Begin commits a 200 status with the given content type. A negative
	// length leaves Content-Length unset.
	Begin(contentType string, length int64) io.Writer
}

// Orchestrator drives the codec for one classified request.
type Orchestrator struct {
	codec   codec.Codec
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrchestrator builds an orchestrator around an already connected codec.
// A timeout <= 0 leaves conversions unbounded.
func NewOrchestrator(c codec.Codec, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		codec:   c,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
	}
}

// Convert turns the source at input into the target format. The result goes
// to req.DestPath when set, otherwise to sink. Each call is attempted once.
func (o *Orchestrator) Convert(ctx context.Context, scope *staging.Scope, req ConversionRequest, input string, sink ResponseSink) Outcome {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var out Outcome
	switch req.Direction {
	case XMLToBinary:
		out = o.toBinary(ctx, scope, req, input, sink)
	default:
		out = o.toXML(ctx, scope, req, input, sink)
	}
	if out.Kind == Success {
		out.ContentType = req.Direction.TargetType()
	}

	logger := logging.WithContext(ctx, o.logger)
	if out.Kind == Success {
		logger.Debug("conversion finished",
			logging.String(logging.FieldDirection, req.Direction.String()),
			logging.Int64("bytes", out.Bytes),
		)
	}
	return out
}

func (o *Orchestrator) toXML(ctx context.Context, scope *staging.Scope, req ConversionRequest, input string, sink ResponseSink) Outcome {
	doc, err := o.codec.ParseBinary(ctx, input)
	if err != nil {
		return failureOutcome(err)
	}
	defer doc.Close()

	writeXML := func(path string) error {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return services.Wrap(services.ErrResource, "orchestrator", "open output", path, err)
		}
		_, err = o.codec.WriteXML(ctx, doc, f)
		closeErr := f.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return services.Wrap(services.ErrResource, "orchestrator", "write output", path, closeErr)
		}
		return nil
	}

	if req.DestPath != "" {
		return writeDest(req.DestPath, writeXML)
	}
	return o.stageAndSend(scope, req, sink, writeXML)
}

func (o *Orchestrator) toBinary(ctx context.Context, scope *staging.Scope, req ConversionRequest, input string, sink ResponseSink) Outcome {
	doc, err := o.codec.ParseXML(ctx, input)
	if err != nil {
		return failureOutcome(err)
	}
	defer doc.Close()

	save := func(path string) error {
		return o.codec.Save(ctx, doc, path)
	}
	if req.DestPath != "" {
		return writeDest(req.DestPath, save)
	}
	return o.stageAndSend(scope, req, sink, save)
}

// stageAndSend renders the result into a staged file and only then commits
// the response, so every codec failure is still answered with an error
// status and the body carries a Content-Length.
func (o *Orchestrator) stageAndSend(scope *staging.Scope, req ConversionRequest, sink ResponseSink, render func(path string) error) Outcome {
	staged, err := scope.Acquire("out-", req.Direction.TargetSuffix())
	if err != nil {
		return failureOutcome(err)
	}
	defer func() { _ = staged.Release() }()

	if err := render(staged.Path()); err != nil {
		return failureOutcome(err)
	}
	f, err := os.Open(staged.Path())
	if err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "open result", "", err))
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "stat result", "", err))
	}

	w := sink.Begin(req.Direction.TargetType(), info.Size())
	n, err := io.Copy(w, f)
	if err != nil {
		out := failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "copy result", "", err))
		out.Bytes = n
		out.Committed = true
		return out
	}
	return Outcome{Kind: Success, Bytes: n, Committed: true}
}

// writeDest renders into a hidden sibling of path and renames it into place
// once render succeeds. A failed conversion leaves path untouched.
func writeDest(path string, render func(tmp string) error) Outcome {
	location, err := fileURI(path)
	if err != nil {
		return failureOutcome(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "create destination", path, err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if err := tmp.Close(); err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "create destination", path, err))
	}

	if err := render(tmpPath); err != nil {
		return failureOutcome(err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "stat destination", path, err))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "write destination", path, err))
	}
	if err := fileutil.MoveFile(tmpPath, path); err != nil {
		return failureOutcome(services.Wrap(services.ErrResource, "orchestrator", "write destination", path, err))
	}
	return Outcome{Kind: Success, Bytes: info.Size(), Location: location}
}

func fileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "orchestrator", "resolve destination", path, err)
	}
	return fmt.Sprintf("file://%s", filepath.ToSlash(abs)), nil
}
