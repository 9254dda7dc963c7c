package api

import (
	"time"

	"forms2xml/internal/deps"
	"forms2xml/internal/journal"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// GatewayStatus aggregates gateway runtime information for API consumers.
type GatewayStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Listen       string             `json:"listen"`
	StartedAt    string             `json:"startedAt,omitempty"`
	StagingDir   string             `json:"stagingDir"`
	StagedFiles  int                `json:"stagedFiles"`
	LockFilePath string             `json:"lockFilePath"`
	JournalPath  string             `json:"journalPath,omitempty"`
	Outcomes     map[string]int     `json:"outcomes,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Conversion describes one journaled request in a transport-friendly format.
type Conversion struct {
	ID         int64  `json:"id"`
	RequestID  string `json:"requestId"`
	Method     string `json:"method"`
	Direction  string `json:"direction,omitempty"`
	SourceMode string `json:"sourceMode,omitempty"`
	SourcePath string `json:"sourcePath,omitempty"`
	DestPath   string `json:"destPath,omitempty"`
	Outcome    string `json:"outcome"`
	Status     int    `json:"status"`
	Bytes      int64  `json:"bytes"`
	DurationMS int64  `json:"durationMs"`
	Message    string `json:"message,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// ConversionListResponse wraps journaled conversions for API responses.
type ConversionListResponse struct {
	Items []Conversion `json:"items"`
}

// FromDependencies converts dependency checks into API payloads.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FromRecord converts a journal record into its API form.
func FromRecord(rec journal.Record) Conversion {
	return Conversion{
		ID:         rec.ID,
		RequestID:  rec.RequestID,
		Method:     rec.Method,
		Direction:  rec.Direction,
		SourceMode: rec.SourceMode,
		SourcePath: rec.SourcePath,
		DestPath:   rec.DestPath,
		Outcome:    rec.Outcome,
		Status:     rec.Status,
		Bytes:      rec.Bytes,
		DurationMS: rec.Duration.Milliseconds(),
		Message:    rec.Message,
		CreatedAt:  FormatTime(rec.CreatedAt),
	}
}

// FromRecords converts a slice of journal records.
func FromRecords(records []journal.Record) []Conversion {
	out := make([]Conversion, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FormatTime renders t in the API timestamp format. The zero time is empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime parses an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
