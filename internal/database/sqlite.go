package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/fooddeclare/internal/models"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// fixed-width so created_at sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB implements the DB interface
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// WAL mode so the HTTP handlers can read while a mutation writes through
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("error enabling WAL mode: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}

	log.Debug().Msg("Database schema initialized")
	return nil
}

// Load returns the value stored under key, or nil if there is none
func (s *SQLiteDB) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error loading key %q: %w", key, err)
	}
	return value, nil
}

// Save upserts the value stored under key
func (s *SQLiteDB) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("error saving key %q: %w", key, err)
	}
	return nil
}

// SaveScan saves a scan record to the database
func (s *SQLiteDB) SaveScan(ctx context.Context, scan *models.ScanRecord) error {
	query := `
		INSERT OR REPLACE INTO scans (
			id, kind, status, query, name, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		scan.ID, string(scan.Kind), scan.Status, scan.Query, scan.Name, scan.Error,
		scan.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// RecentScans retrieves the most recent scan records
func (s *SQLiteDB) RecentScans(ctx context.Context, limit int) ([]*models.ScanRecord, error) {
	query := `
		SELECT id, kind, status, query, name, error, created_at
		FROM scans
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ScanRecord
	for rows.Next() {
		var scan models.ScanRecord
		var kind, createdAt string

		if err := rows.Scan(
			&scan.ID, &kind, &scan.Status, &scan.Query, &scan.Name, &scan.Error, &createdAt,
		); err != nil {
			return nil, err
		}

		scan.Kind = models.InputKind(kind)
		scan.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		results = append(results, &scan)
	}

	return results, rows.Err()
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

var _ DB = (*SQLiteDB)(nil)
