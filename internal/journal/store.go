package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one handled conversion request.
type Record struct {
	ID         int64         `json:"id"`
	RequestID  string        `json:"request_id"`
	Method     string        `json:"method"`
	Direction  string        `json:"direction,omitempty"`
	SourceMode string        `json:"source_mode,omitempty"`
	SourcePath string        `json:"source_path,omitempty"`
	DestPath   string        `json:"dest_path,omitempty"`
	Outcome    string        `json:"outcome"`
	Status     int           `json:"status"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	Message    string        `json:"message,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Store persists conversion history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append stores rec and returns its identifier. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, rec Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversions (
            request_id, method, direction, source_mode, source_path, dest_path,
            outcome, status, bytes, duration_ms, message, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.Method,
		nullableString(rec.Direction),
		nullableString(rec.SourceMode),
		nullableString(rec.SourcePath),
		nullableString(rec.DestPath),
		rec.Outcome,
		rec.Status,
		rec.Bytes,
		rec.Duration.Milliseconds(),
		nullableString(rec.Message),
		rec.CreatedAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("insert conversion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// List returns up to limit records, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM conversions ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return records, nil
}

// Stats returns record counts grouped by outcome.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM conversions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("conversion stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[outcome] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Prune deletes records created before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversions WHERE created_at < ?`,
		cutoff.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("prune conversions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return removed, nil
}

// timestampLayout is fixed width so created_at sorts and compares as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = "id, request_id, method, direction, source_mode, source_path, dest_path, outcome, status, bytes, duration_ms, message, created_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec        Record
		direction  sql.NullString
		sourceMode sql.NullString
		sourcePath sql.NullString
		destPath   sql.NullString
		message    sql.NullString
		durationMS int64
		createdRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.RequestID,
		&rec.Method,
		&direction,
		&sourceMode,
		&sourcePath,
		&destPath,
		&rec.Outcome,
		&rec.Status,
		&rec.Bytes,
		&durationMS,
		&message,
		&createdRaw,
	); err != nil {
		return Record{}, fmt.Errorf("scan conversion: %w", err)
	}
	rec.Direction = direction.String
	rec.SourceMode = sourceMode.String
	rec.SourcePath = sourcePath.String
	rec.DestPath = destPath.String
	rec.Message = message.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if ts, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		rec.CreatedAt = ts
	}
	return rec, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
