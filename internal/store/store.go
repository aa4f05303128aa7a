// Package store provides SQLite-backed persistence for transformation
// history, cached results and audit records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/helios/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the Helios SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		archive TEXT NOT NULL,
		entry TEXT NOT NULL,
		transformer TEXT NOT NULL,
		input_hash TEXT NOT NULL,
		settings_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		message TEXT,
		stdout TEXT,
		stderr TEXT,
		outputs BLOB,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	DROP TABLE IF EXISTS results;

	CREATE TABLE IF NOT EXISTS result_cache (
		input_hash TEXT NOT NULL,
		output_key TEXT NOT NULL,
		transformer TEXT NOT NULL,
		settings_hash TEXT NOT NULL,
		context_hash TEXT NOT NULL,
		outputs BLOB NOT NULL,
		stdout TEXT,
		stderr TEXT,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (input_hash, output_key, transformer, settings_hash, context_hash)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		subject TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_archive ON runs(archive);
	CREATE INDEX IF NOT EXISTS idx_runs_transformer ON runs(transformer);
	CREATE INDEX IF NOT EXISTS idx_pdr_action ON pdr(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Archive     string
	Transformer string
	Limit       int
}

// RecordRun inserts a finished transformation. An empty ID is generated.
func (s *Store) RecordRun(run *models.TransformRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	outputs, err := marshalOutputs(run.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO runs (id, archive, entry, transformer, input_hash, settings_hash, outcome, message, stdout, stderr, outputs, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Archive, run.Entry, run.Transformer, run.InputHash, run.SettingsHash, run.Outcome,
		run.Message, run.Stdout, run.Stderr, outputs, run.StartedAt.UTC(), run.EndedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const runColumns = `id, archive, entry, transformer, input_hash, settings_hash, outcome, message, stdout, stderr, outputs, started_at, ended_at`

func scanRun(row interface{ Scan(...any) error }) (*models.TransformRun, error) {
	var run models.TransformRun
	var message, stdout, stderr sql.NullString
	var outputs []byte
	if err := row.Scan(&run.ID, &run.Archive, &run.Entry, &run.Transformer, &run.InputHash, &run.SettingsHash,
		&run.Outcome, &message, &stdout, &stderr, &outputs, &run.StartedAt, &run.EndedAt); err != nil {
		return nil, err
	}
	run.Message = message.String
	run.Stdout = stdout.String
	run.Stderr = stderr.String

	decoded, err := unmarshalOutputs(outputs)
	if err != nil {
		return nil, err
	}
	run.Outputs = decoded
	return &run, nil
}

// GetRun retrieves a run by ID. It returns nil when no run matches.
func (s *Store) GetRun(id string) (*models.TransformRun, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns recorded runs, newest first.
func (s *Store) ListRuns(filter RunFilter) ([]models.TransformRun, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any
	if filter.Archive != "" {
		query += ` AND archive = ?`
		args = append(args, filter.Archive)
	}
	if filter.Transformer != "" {
		query += ` AND transformer = ?`
		args = append(args, filter.Transformer)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.TransformRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Result Cache Operations ---

// ResultKey identifies a cached transformation result.
type ResultKey struct {
	InputHash string
	// OutputKey is the name the result is stored under, so identical bytes
	// in two entries do not share a row.
	OutputKey    string
	Transformer  string
	SettingsHash string
	// ContextHash covers what else the output depends on: the classpath
	// and, for external tools, their configuration.
	ContextHash string
}

// CachedResult is a stored successful transformation.
type CachedResult struct {
	Outputs   map[string][]byte
	Stdout    string
	Stderr    string
	CreatedAt time.Time
}

// PutResult stores or replaces a cached result.
func (s *Store) PutResult(key ResultKey, res *CachedResult) error {
	outputs, err := marshalOutputs(res.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if outputs == nil {
		return fmt.Errorf("cache result for %s: no outputs", key.Transformer)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO result_cache (input_hash, output_key, transformer, settings_hash, context_hash, outputs, stdout, stderr, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.InputHash, key.OutputKey, key.Transformer, key.SettingsHash, key.ContextHash, outputs, res.Stdout, res.Stderr, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// GetResult looks up a cached result. It returns nil on a miss.
func (s *Store) GetResult(key ResultKey) (*CachedResult, error) {
	var res CachedResult
	var outputs []byte
	var stdout, stderr sql.NullString
	err := s.db.QueryRow(
		`SELECT outputs, stdout, stderr, created_at FROM result_cache
		 WHERE input_hash = ? AND output_key = ? AND transformer = ? AND settings_hash = ? AND context_hash = ?`,
		key.InputHash, key.OutputKey, key.Transformer, key.SettingsHash, key.ContextHash,
	).Scan(&outputs, &stdout, &stderr, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	res.Outputs, err = unmarshalOutputs(outputs)
	if err != nil {
		return nil, err
	}
	res.Stdout = stdout.String
	res.Stderr = stderr.String
	return &res, nil
}

// ClearResults drops every cached result and returns how many were removed.
func (s *Store) ClearResults() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM result_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear results: %w", err)
	}
	return res.RowsAffected()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, subject, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		Subject:    subject,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, subject, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.Subject, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns audit records, newest first.
func (s *Store) ListPDR(limit int) ([]models.PDREntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, action, inputs_hash, outcome, subject, details, timestamp FROM pdr ORDER BY timestamp DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var subject, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &subject, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.Subject = subject.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
