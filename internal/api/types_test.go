package api

import (
	"testing"
	"time"

	"forms2xml/internal/deps"
	"forms2xml/internal/journal"
)

func TestFromRecord(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	got := FromRecord(journal.Record{
		ID:        7,
		RequestID: "req-7",
		Method:    "GET",
		Direction: "xml_to_binary",
		Outcome:   "success",
		Status:    201,
		Bytes:     2048,
		Duration:  2500 * time.Millisecond,
		CreatedAt: created,
	})
	if got.DurationMS != 2500 || got.Status != 201 || got.Direction != "xml_to_binary" {
		t.Fatalf("unexpected conversion %#v", got)
	}
	if got.CreatedAt != "2026-03-01T12:30:00.000Z" {
		t.Fatalf("unexpected timestamp %q", got.CreatedAt)
	}
	if !ParseTime(got.CreatedAt).Equal(created) {
		t.Fatalf("timestamp did not parse back: %q", got.CreatedAt)
	}
}

func TestFormatTimeZero(t *testing.T) {
	if FormatTime(time.Time{}) != "" {
		t.Fatal("expected empty string for zero time")
	}
	if !ParseTime("not a time").IsZero() {
		t.Fatal("expected zero time for bad input")
	}
}

func TestFromDependencies(t *testing.T) {
	out := FromDependencies([]deps.Status{{Name: "frmf2xml", Command: "/opt/bin/frmf2xml", Available: true}})
	if len(out) != 1 || out[0].Name != "frmf2xml" || !out[0].Available {
		t.Fatalf("unexpected payload %#v", out)
	}
}
