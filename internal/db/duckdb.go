// Package db keeps a DuckDB read model of the loaded dataset so the
// observations can be explored with SQL through /api/v1/query.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/joeblew999/plat-atlas/internal/atlas"
)

var (
	instance *sql.DB
	once     sync.Once
	initErr  error
)

// Config holds database configuration. An empty DataDir opens an
// in-memory database.
type Config struct {
	DataDir string
	DBName  string
}

// Get returns the singleton DuckDB connection.
func Get(cfg Config) (*sql.DB, error) {
	once.Do(func() {
		instance, initErr = Open(cfg)
	})
	return instance, initErr
}

// Open opens a new connection.
func Open(cfg Config) (*sql.DB, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "atlas"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	return conn, nil
}

// Close closes the singleton connection.
func Close() error {
	if instance != nil {
		return instance.Close()
	}
	return nil
}

var schema = []string{
	`CREATE OR REPLACE TABLE classes (name VARCHAR, info VARCHAR, species INTEGER)`,
	`CREATE OR REPLACE TABLE occurrences (class VARCHAR, species VARCHAR, idx INTEGER, quad VARCHAR)`,
	`CREATE OR REPLACE TABLE levels (class VARCHAR, species VARCHAR, idx INTEGER, level VARCHAR)`,
	`CREATE OR REPLACE VIEW richness AS
		SELECT class, quad, count(*) AS species FROM occurrences GROUP BY class, quad`,
}

// LoadDataset replaces the read model with ds. Every entry of a species'
// quad list becomes one occurrence row, so the richness view counts the
// same way the map does.
func LoadDataset(ctx context.Context, conn *sql.DB, ds *atlas.Dataset) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	classStmt, err := tx.PrepareContext(ctx, `INSERT INTO classes VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer classStmt.Close()
	occStmt, err := tx.PrepareContext(ctx, `INSERT INTO occurrences VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer occStmt.Close()
	levelStmt, err := tx.PrepareContext(ctx, `INSERT INTO levels VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer levelStmt.Close()

	for _, c := range ds.Classes {
		if _, err := classStmt.ExecContext(ctx, c.Name, c.Info, len(c.Species)); err != nil {
			return fmt.Errorf("inserting class %q: %w", c.Name, err)
		}
		for _, sp := range c.Species {
			for i, quad := range sp.Quad {
				if _, err := occStmt.ExecContext(ctx, c.Name, sp.Name, i, quad); err != nil {
					return fmt.Errorf("inserting %s/%s: %w", c.Name, sp.Name, err)
				}
				for _, l := range sp.Value[i] {
					if _, err := levelStmt.ExecContext(ctx, c.Name, sp.Name, i, string(l)); err != nil {
						return fmt.Errorf("inserting %s/%s level: %w", c.Name, sp.Name, err)
					}
				}
			}
		}
	}
	return tx.Commit()
}

// Lock cuts the database off from host files, network and extensions and
// freezes its settings. LoadDataset keeps working on a locked database.
// Locking twice is a no-op.
func Lock(ctx context.Context, conn *sql.DB) error {
	var locked bool
	if err := conn.QueryRowContext(ctx, `SELECT current_setting('lock_configuration')`).Scan(&locked); err != nil {
		return fmt.Errorf("reading lock state: %w", err)
	}
	if locked {
		return nil
	}
	for _, stmt := range []string{
		`SET GLOBAL enable_external_access = false`,
		`SET GLOBAL lock_configuration = true`,
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("locking duckdb: %w", err)
		}
	}
	return nil
}
