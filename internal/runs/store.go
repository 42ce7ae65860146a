// Package runs persists a record per served model instance: which
// architecture was built, with which hyperparameters, and when.
package runs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run is one recorded model instantiation.
type Run struct {
	ID          string         `json:"id"`
	Model       string         `json:"model"`
	Hyperparams map[string]any `json:"hyperparams"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store persists runs in a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the run database at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		hyperparams TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run database: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts a new run for the given architecture and returns it.
func (s *Store) Record(model string, hyperparams map[string]any) (*Run, error) {
	encoded, err := json.Marshal(hyperparams)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hyperparameters: %w", err)
	}

	run := &Run{
		ID:          uuid.New().String(),
		Model:       model,
		Hyperparams: hyperparams,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.db.Exec(
		"INSERT INTO runs (id, model, hyperparams, created_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Model, string(encoded), run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Get retrieves one run by id.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT id, model, hyperparams, created_at FROM runs WHERE id = ?", id)
	return scanRun(row)
}

// List returns all runs, newest first.
func (s *Store) List() ([]*Run, error) {
	rows, err := s.db.Query("SELECT id, model, hyperparams, created_at FROM runs ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var encoded string
	if err := row.Scan(&run.ID, &run.Model, &encoded, &run.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found")
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(encoded), &run.Hyperparams); err != nil {
		return nil, fmt.Errorf("failed to decode hyperparameters: %w", err)
	}
	return &run, nil
}
