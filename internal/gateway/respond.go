package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"forms2xml/internal/logging"
)

// RequestIDHeader carries the correlation ID on every response.
const RequestIDHeader = "X-Request-Id"

// responder maps outcomes onto a ResponseWriter and commits the status line
// at most once.
type responder struct {
	w         http.ResponseWriter
	logger    *slog.Logger
	committed bool
	status    int
	written   int64
}

func newResponder(w http.ResponseWriter, requestID string, logger *slog.Logger) *responder {
	w.Header().Set(RequestIDHeader, requestID)
	return &responder{w: w, logger: logger}
}

// Begin implements ResponseSink.
func (r *responder) Begin(contentType string, length int64) io.Writer {
	if r.committed {
		return io.Discard
	}
	header := r.w.Header()
	header.Set("Content-Type", contentType)
	if length >= 0 {
		header.Set("Content-Length", strconv.FormatInt(length, 10))
	}
	r.commit(http.StatusOK)
	return &countingWriter{w: r.w, n: &r.written}
}

// Finish writes the response for out unless a status was already sent.
func (r *responder) Finish(out Outcome) {
	if r.committed {
		if out.Kind != Success {
			logging.ErrorWithContext(r.logger, "conversion failed after response started", "response_aborted",
				logging.String("outcome", out.Kind.String()),
				logging.Int("status", r.status),
				logging.Int64("bytes", r.written),
				logging.Error(out.Err),
				logging.String(logging.FieldErrorHint, "client received a truncated document"),
			)
		}
		return
	}

	switch out.Kind {
	case Success:
		if out.ContentType != "" {
			r.w.Header().Set("Content-Type", out.ContentType)
		}
		if out.Location != "" {
			r.w.Header().Set("Location", out.Location)
			r.w.Header().Set("Content-Length", "0")
			r.commit(http.StatusCreated)
			return
		}
		r.commit(http.StatusOK)
	case ProtocolViolation:
		status := http.StatusInternalServerError
		if out.Violation != nil {
			status = out.Violation.Status()
		}
		r.text(status, out.Message)
	default:
		r.text(http.StatusInternalServerError, "ERROR: "+out.Message)
	}
}

// Status returns the committed status code, or zero.
func (r *responder) Status() int {
	return r.status
}

// Written returns the body bytes sent so far.
func (r *responder) Written() int64 {
	return r.written
}

func (r *responder) text(status int, body string) {
	header := r.w.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Del("Location")
	r.commit(status)
	n, err := io.WriteString(r.w, body)
	r.written += int64(n)
	if err != nil {
		r.logger.Debug("write error body failed", logging.Error(err))
	}
}

func (r *responder) commit(status int) {
	r.committed = true
	r.status = status
	r.w.WriteHeader(status)
}

type countingWriter struct {
	w io.Writer
	n *int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += int64(n)
	return n, err
}
