// Package save persists quest state into named slots. The SQL store
// speaks SQLite and PostgreSQL through a small dialect layer and guards
// every blob with a BLAKE2b checksum; a blob that fails verification is
// treated as missing rather than loaded.
package save

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"

	"github.com/lanternvale/questline/internal/logger"
)

// ErrNotFound is returned by Get for absent or corrupt slots.
var ErrNotFound = errors.New("save slot not found")

// Store is the persistence surface the save manager runs on.
type Store interface {
	Put(slot string, blob []byte) error
	Get(slot string) ([]byte, error)
	Delete(slot string) error
	Exists(slot string) (bool, error)
	Slots() ([]string, error)
	Close() error
}

// SQLStore implements Store on a SQL database.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// Open opens the configured database and creates the slot table.
func Open(cfg Config) (*SQLStore, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	if dialect.DriverName() == "sqlite" {
		dir := filepath.Dir(cfg.SQLitePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create save directory: %w", err)
		}
	}

	db, err := sql.Open(dialect.DriverName(), cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open save database: %w", err)
	}

	if dialect.DriverName() == "postgres" {
		p := cfg.Postgres
		if p.MaxOpenConns > 0 {
			db.SetMaxOpenConns(p.MaxOpenConns)
		}
		if p.MaxIdleConns > 0 {
			db.SetMaxIdleConns(p.MaxIdleConns)
		}
		if p.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(p.ConnMaxLifetime)
		}
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize save database: %w", err)
		}
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run save migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate() error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS save_slots (
		slot TEXT PRIMARY KEY,
		blob %s NOT NULL,
		checksum TEXT NOT NULL,
		saved_at TIMESTAMP NOT NULL
	)`, s.dialect.BlobType())
	_, err := s.db.Exec(schema)
	return err
}

func checksum(blob []byte) string {
	sum := blake2b.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// Put writes a blob into a slot, replacing any previous contents.
func (s *SQLStore) Put(slot string, blob []byte) error {
	query := rebind(s.dialect, `INSERT INTO save_slots (slot, blob, checksum, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET
			blob = excluded.blob,
			checksum = excluded.checksum,
			saved_at = excluded.saved_at`)

	_, err := s.db.Exec(query, slot, blob, checksum(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write save slot %q: %w", slot, err)
	}
	return nil
}

// Get reads a slot's blob and verifies its checksum. Absent and corrupt
// slots both return ErrNotFound.
func (s *SQLStore) Get(slot string) ([]byte, error) {
	query := rebind(s.dialect, "SELECT blob, checksum FROM save_slots WHERE slot = ?")

	var blob []byte
	var sum string
	err := s.db.QueryRow(query, slot).Scan(&blob, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read save slot %q: %w", slot, err)
	}

	if checksum(blob) != sum {
		logger.Warning("Save slot failed checksum verification", "slot", slot)
		return nil, ErrNotFound
	}
	return blob, nil
}

// Delete removes a slot. Deleting an absent slot is not an error.
func (s *SQLStore) Delete(slot string) error {
	query := rebind(s.dialect, "DELETE FROM save_slots WHERE slot = ?")
	if _, err := s.db.Exec(query, slot); err != nil {
		return fmt.Errorf("failed to delete save slot %q: %w", slot, err)
	}
	return nil
}

// Exists reports whether a slot is present, without verifying it.
func (s *SQLStore) Exists(slot string) (bool, error) {
	query := rebind(s.dialect, "SELECT 1 FROM save_slots WHERE slot = ?")

	var one int
	err := s.db.QueryRow(query, slot).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check save slot %q: %w", slot, err)
	}
	return true, nil
}

// Slots lists every slot name, sorted.
func (s *SQLStore) Slots() ([]string, error) {
	rows, err := s.db.Query("SELECT slot FROM save_slots ORDER BY slot")
	if err != nil {
		return nil, fmt.Errorf("failed to list save slots: %w", err)
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
