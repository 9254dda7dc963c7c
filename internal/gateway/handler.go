package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"forms2xml/internal/journal"
	"forms2xml/internal/logging"
	"forms2xml/internal/services"
	"forms2xml/internal/staging"
)

// Recorder receives one journal record per handled request.
type Recorder interface {
	Append(ctx context.Context, rec journal.Record) (int64, error)
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder journals every handled request.
func WithRecorder(rec Recorder) Option {
	return func(h *Handler) {
		h.recorder = rec
	}
}

// WithMaxBodyBytes caps inline request bodies. A limit <= 0 disables the cap.
func WithMaxBodyBytes(limit int64) Option {
	return func(h *Handler) {
		h.maxBody = limit
	}
}

// WithLogger sets the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Handler is the single conversion route.
type Handler struct {
	orchestrator *Orchestrator
	staging      *staging.Manager
	recorder     Recorder
	maxBody      int64
	logger       *slog.Logger
}

// NewHandler wires the classifier, staging and orchestrator into an
// http.Handler.
func NewHandler(orchestrator *Orchestrator, manager *staging.Manager, opts ...Option) *Handler {
	h := &Handler{
		orchestrator: orchestrator,
		staging:      manager,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.NewComponentLogger(h.logger, "gateway")
	return h
}

// ServeHTTP classifies, stages, converts and answers one request. Every
// staged file is gone by the time it returns.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx := services.WithRequestID(r.Context(), requestID)
	logger := logging.WithContext(ctx, h.logger)
	resp := newResponder(w, requestID, logger)

	scope := h.staging.Scope()
	defer func() {
		if err := scope.Close(); err != nil {
			logger.Warn("staged files not released", logging.Error(err))
		}
	}()

	req, err := Classify(r.Method, r.Header, r.URL.RawQuery)
	var out Outcome
	if err != nil {
		out = failureOutcome(err)
	} else {
		out = h.run(ctx, scope, r, req, resp)
	}
	resp.Finish(out)

	h.finish(ctx, logger, r.Method, err == nil, req, out, resp, time.Since(start))
}

func (h *Handler) run(ctx context.Context, scope *staging.Scope, r *http.Request, req ConversionRequest, resp *responder) (out Outcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			out = failureOutcome(services.Wrap(services.ErrResource, "gateway", "handle", fmt.Sprintf("panic: %v", recovered), nil))
			out.Committed = resp.committed
		}
	}()

	input, err := h.acquireSource(scope, r, req)
	if err != nil {
		return failureOutcome(err)
	}
	return h.orchestrator.Convert(ctx, scope, req, input, resp)
}

// acquireSource returns the path the codec should read. Inline bodies are
// staged; ByPath sources are used in place and never deleted.
func (h *Handler) acquireSource(scope *staging.Scope, r *http.Request, req ConversionRequest) (string, error) {
	if req.Mode == ByPath {
		info, err := os.Stat(req.SourcePath)
		if err != nil {
			return "", services.Wrap(services.ErrResource, "gateway", "open source", req.SourcePath, err)
		}
		if info.IsDir() {
			return "", services.Wrap(services.ErrResource, "gateway", "open source", req.SourcePath+" is a directory", nil)
		}
		return req.SourcePath, nil
	}

	staged, err := scope.Acquire("in-", req.Direction.SourceSuffix())
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(staged.Path(), os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", services.Wrap(services.ErrResource, "gateway", "stage body", "", err)
	}
	body := io.Reader(r.Body)
	if h.maxBody > 0 {
		body = http.MaxBytesReader(nil, r.Body, h.maxBody)
	}
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(copyErr, &tooLarge):
		return "", requestViolation("request body exceeds %d bytes", tooLarge.Limit)
	case copyErr != nil:
		return "", services.Wrap(services.ErrResource, "gateway", "read body", "", copyErr)
	case closeErr != nil:
		return "", services.Wrap(services.ErrResource, "gateway", "stage body", "", closeErr)
	case n == 0:
		return "", requestViolation("empty request body")
	}
	return staged.Path(), nil
}

func (h *Handler) finish(ctx context.Context, logger *slog.Logger, method string, classified bool, req ConversionRequest, out Outcome, resp *responder, elapsed time.Duration) {
	attrs := []logging.Attr{
		logging.String("method", method),
		logging.String("outcome", out.Kind.String()),
		logging.Int("status", resp.Status()),
		logging.Int64("bytes", out.Bytes),
		logging.Int64("response_bytes", resp.Written()),
		logging.Duration("duration", elapsed),
	}
	if classified {
		attrs = append(attrs,
			logging.String(logging.FieldDirection, req.Direction.String()),
			logging.String(logging.FieldSourceMode, req.Mode.String()),
		)
	}
	switch out.Kind {
	case Success:
		logger.Info("conversion request handled", logging.Args(attrs...)...)
	case ProtocolViolation:
		attrs = append(attrs, logging.String("reason", out.Message))
		logging.WarnWithContext(logger, "conversion request rejected", "request_rejected", append(attrs,
			logging.String(logging.FieldErrorHint, "fix the request method, headers or query"),
			logging.String(logging.FieldImpact, "request not converted"),
		)...)
	default:
		attrs = append(attrs, logging.Error(out.Err))
		logging.WarnWithContext(logger, "conversion request failed", "conversion_failed", append(attrs,
			logging.String(logging.FieldImpact, "request not converted"),
		)...)
	}

	if h.recorder == nil {
		return
	}
	rec := journal.Record{
		RequestID: requestIDOf(ctx),
		Method:    method,
		Outcome:   out.Kind.String(),
		Status:    resp.Status(),
		Bytes:     out.Bytes,
		Duration:  elapsed,
	}
	if out.Kind != Success {
		rec.Message = out.Message
	}
	if classified {
		rec.Direction = req.Direction.String()
		rec.SourceMode = req.Mode.String()
		rec.SourcePath = req.SourcePath
		rec.DestPath = req.DestPath
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := h.recorder.Append(recordCtx, rec); err != nil {
		logger.Warn("journal append failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "journal_append_failed"),
			logging.String(logging.FieldErrorHint, "check journal.path permissions"),
			logging.String(logging.FieldImpact, "conversion missing from history"),
		)
	}
}

func requestIDOf(ctx context.Context) string {
	id, _ := services.RequestIDFromContext(ctx)
	return id
}
