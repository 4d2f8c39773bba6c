// Package audit persists per-run records in SQLite: which detectors
// responded, how many spans each category produced, and the optional
// score report. The input text is never stored, only its SHA-256 hash
// and length, so the store does not become a shadow corpus of the
// sensitive material it audits.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	quillotel "github.com/dativo-io/quill/internal/otel"
	"github.com/dativo-io/quill/internal/score"
	"github.com/dativo-io/quill/internal/span"
)

var tracer = quillotel.Tracer("github.com/dativo-io/quill/internal/audit")

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("audit record not found")

// DetectorStatus captures one detector's outcome in a run.
type DetectorStatus struct {
	ID        string `json:"id"`
	Available bool   `json:"available"`
	Spans     int    `json:"spans"`
	Error     string `json:"error,omitempty"`
}

// Record is the full audit entry for one pipeline run.
type Record struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	TextHash     string                `json:"text_hash"`
	TextLen      int                   `json:"text_len"`
	Detectors    []DetectorStatus      `json:"detectors,omitempty"`
	SpanCounts   map[span.Category]int `json:"span_counts,omitempty"`
	Replacements int                   `json:"replacements,omitempty"`
	Score        *score.Report         `json:"score,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// Store persists run records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the audit database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		text_hash TEXT NOT NULL,
		text_len INTEGER NOT NULL,
		record_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_text_hash ON runs(text_hash);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one run record.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	ctx, sp := tracer.Start(ctx, "audit.save",
		trace.WithAttributes(attribute.String("run.id", rec.ID)))
	defer sp.End()

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}

	query := `INSERT INTO runs (id, timestamp, text_hash, text_len, record_json)
	          VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.TextHash, rec.TextLen, string(recordJSON),
	); err != nil {
		return fmt.Errorf("storing audit record: %w", err)
	}
	return nil
}

// Get retrieves one record by id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	ctx, sp := tracer.Start(ctx, "audit.get",
		trace.WithAttributes(attribute.String("run.id", id)))
	defer sp.End()

	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM runs WHERE id = ?`, id).Scan(&recordJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying audit record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling audit record: %w", err)
	}
	return &rec, nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	ctx, sp := tracer.Start(ctx, "audit.list",
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer sp.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_json FROM runs ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
			return nil, fmt.Errorf("unmarshaling audit record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// HashText returns the hex SHA-256 of the input text.
func HashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
