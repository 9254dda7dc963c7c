package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"forms2xml/internal/api"
	"forms2xml/internal/client"
	"forms2xml/internal/codec"
	"forms2xml/internal/gateway"
	"forms2xml/internal/logging"
	"forms2xml/internal/staging"
	"forms2xml/internal/testsupport"
)

func newGateway(t *testing.T) *httptest.Server {
	t.Helper()
	manager, err := staging.NewManager(filepath.Join(t.TempDir(), "staging"), logging.NewNop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	orch := gateway.NewOrchestrator(testsupport.NewFakeCodec(), 5*time.Second, logging.NewNop())
	srv := httptest.NewServer(gateway.NewHandler(orch, manager))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url string, opts ...client.Option) *client.Client {
	t.Helper()
	opts = append([]client.Option{client.WithRetryWait(time.Millisecond, 5*time.Millisecond)}, opts...)
	c, err := client.New(url, opts...)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestSniffMediaType(t *testing.T) {
	tests := []struct {
		name string
		head string
		want string
	}{
		{"declaration", `<?xml version="1.0"?><Module/>`, codec.MediaTypeXML},
		{"leading whitespace", "\n  <?xml version=\"1.0\"?>", codec.MediaTypeXML},
		{"byte order mark", "\xef\xbb\xbf<?xml version=\"1.0\"?>", codec.MediaTypeXML},
		{"binary", "\x00\x00FMB", codec.MediaTypeBinary},
		{"xml without declaration", "<Module/>", codec.MediaTypeBinary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.SniffMediaType([]byte(tt.head)); got != tt.want {
				t.Fatalf("SniffMediaType(%q) = %q, want %q", tt.head, got, tt.want)
			}
		})
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	srv := newGateway(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	module := testsupport.ModuleBytes(512)
	var xmlOut bytes.Buffer
	res, err := c.Submit(ctx, module, "", &xmlOut)
	if err != nil {
		t.Fatalf("Submit binary: %v", err)
	}
	if res.Status != http.StatusOK || res.RequestID == "" {
		t.Fatalf("unexpected result %#v", res)
	}
	if !strings.HasPrefix(res.ContentType, codec.MediaTypeXML) {
		t.Fatalf("expected XML content type, got %q", res.ContentType)
	}

	var binOut bytes.Buffer
	res, err = c.Submit(ctx, xmlOut.Bytes(), "", &binOut)
	if err != nil {
		t.Fatalf("Submit XML: %v", err)
	}
	if !bytes.Equal(binOut.Bytes(), module) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", binOut.Len(), len(module))
	}
	if res.Bytes != int64(len(module)) {
		t.Fatalf("expected %d bytes, got %d", len(module), res.Bytes)
	}
}

func TestSubmitWithDestination(t *testing.T) {
	srv := newGateway(t)
	c := newClient(t, srv.URL)

	dst := filepath.Join(t.TempDir(), "out.fmb.xml")
	var out bytes.Buffer
	res, err := c.Submit(context.Background(), testsupport.ModuleBytes(64), dst, &out)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", res.Status)
	}
	if !strings.HasPrefix(res.Location, "file://") {
		t.Fatalf("expected file URI location, got %q", res.Location)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no body, got %d bytes", out.Len())
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("expected destination written: %v", err)
	}
}

func TestConvertPathMissingSource(t *testing.T) {
	srv := newGateway(t)
	c := newClient(t, srv.URL)

	_, err := c.ConvertPath(context.Background(), filepath.Join(t.TempDir(), "missing.fmb"), "", nil)
	var respErr *client.ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("expected ResponseError, got %v", err)
	}
	if respErr.Status != http.StatusInternalServerError || !strings.HasPrefix(respErr.Body, "ERROR: ") {
		t.Fatalf("unexpected response error %#v", respErr)
	}
}

func TestServerErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "ERROR: conversion failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	if _, err := c.Submit(context.Background(), []byte("module"), "", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := hits.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestTransportErrorsAreRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		w.Header().Set("Content-Type", codec.MediaTypeXML)
		_, _ = w.Write([]byte("<Module/>"))
	}))
	defer srv.Close()

	c := newClient(t, srv.URL)
	var out bytes.Buffer
	if _, err := c.Submit(context.Background(), []byte("module"), "", &out); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected one retry, got %d attempts", hits.Load())
	}
	if out.String() != "<Module/>" {
		t.Fatalf("unexpected body %q", out.String())
	}
}

func TestStatusSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"running":true,"pid":42,"listen":"127.0.0.1:8008","stagingDir":"/tmp","stagedFiles":0,"lockFilePath":"/tmp/forms2xml.lock","dependencies":[]}`))
	}))
	defer srv.Close()

	status, err := newClient(t, srv.URL, client.WithToken("secret")).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status %#v", status)
	}

	_, err = newClient(t, srv.URL).Status(context.Background())
	var respErr *client.ResponseError
	if !errors.As(err, &respErr) || respErr.Status != http.StatusUnauthorized || respErr.Body != "unauthorized" {
		t.Fatalf("expected unauthorized ResponseError, got %v", err)
	}
}

func TestConversionsPassesLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/conversions" || r.URL.Query().Get("limit") != "5" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"id":1,"requestId":"abc","method":"POST","outcome":"success","status":200,"bytes":10,"durationMs":3}]}`))
	}))
	defer srv.Close()

	items, err := newClient(t, srv.URL).Conversions(context.Background(), 5)
	if err != nil {
		t.Fatalf("Conversions: %v", err)
	}
	want := api.Conversion{ID: 1, RequestID: "abc", Method: "POST", Outcome: "success", Status: 200, Bytes: 10, DurationMS: 3}
	if len(items) != 1 || items[0] != want {
		t.Fatalf("unexpected items %#v", items)
	}
}

func TestNewAcceptsBareHostPort(t *testing.T) {
	if _, err := client.New("127.0.0.1:8008"); err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.New("  "); err == nil {
		t.Fatal("expected error for empty address")
	}
}
