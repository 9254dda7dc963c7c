package gateway

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"forms2xml/internal/logging"
)

func TestResponderCommitsOnce(t *testing.T) {
	rr := httptest.NewRecorder()
	r := newResponder(rr, "req-1", logging.NewNop())

	w := r.Begin("application/xml", -1)
	if _, err := io.WriteString(w, "<Module/>"); err != nil {
		t.Fatal(err)
	}
	if second := r.Begin("text/plain", 3); second != io.Discard {
		t.Fatal("expected second Begin to discard")
	}
	r.Finish(Outcome{Kind: ConversionFailure, Message: "late", Err: errors.New("late")})

	if rr.Code != http.StatusOK || rr.Body.String() != "<Module/>" {
		t.Fatalf("unexpected response %d %q", rr.Code, rr.Body.String())
	}
	if r.Written() != int64(len("<Module/>")) || r.Status() != http.StatusOK {
		t.Fatalf("unexpected accounting: %d bytes status %d", r.Written(), r.Status())
	}
}

func TestResponderMapsOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		out    Outcome
		status int
		body   string
	}{
		{name: "method", out: violationOutcome(methodViolation("PUT")), status: 403, body: "only POST and GET are allowed! (got PUT)"},
		{name: "request", out: violationOutcome(requestViolation("missing src parameter")), status: 500, body: "missing src parameter"},
		{name: "conversion", out: Outcome{Kind: ConversionFailure, Message: "bad module"}, status: 500, body: "ERROR: bad module"},
		{name: "resource", out: Outcome{Kind: ResourceFailure, Message: "disk full"}, status: 500, body: "ERROR: disk full"},
		{name: "file", out: Outcome{Kind: Success, Location: "file:///tmp/x.xml", ContentType: "application/xml"}, status: 201},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newResponder(rr, "id", logging.NewNop()).Finish(tt.out)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if rr.Body.String() != tt.body {
				t.Fatalf("body = %q, want %q", rr.Body.String(), tt.body)
			}
			if rr.Header().Get(RequestIDHeader) != "id" {
				t.Fatal("missing request id header")
			}
		})
	}
}
