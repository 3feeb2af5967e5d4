// Package sqlstore persists notebooks in a sqlite database whose schema is
// managed by embedded migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"pkt.systems/cellbook/internal/nbformat"
	"pkt.systems/cellbook/schema"
	"pkt.systems/pslog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a sqlite-backed notebook store.
type Store struct {
	db  *sql.DB
	log pslog.Logger
}

// Open opens (creating if needed) the database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	logger = logger.With("sqlite_path", path)
	logger.Debug("notebook store ready")
	return &Store{db: db, log: logger}, nil
}

func migrateUp(db *sql.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts a notebook.
func (s *Store) Save(ctx context.Context, nb schema.Notebook) error {
	if nb.ID == "" {
		return schema.ErrInvalidNotebook
	}
	body, err := nbformat.Encode(nb)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO notebooks (id, name, cell_count, created_at, updated_at, body)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    cell_count = excluded.cell_count,
    updated_at = excluded.updated_at,
    body = excluded.body`,
		string(nb.ID), nb.Name, len(nb.Cells), nb.CreatedAt.UnixNano(), nb.UpdatedAt.UnixNano(), body)
	if err != nil {
		s.log.Warn("notebook save failed", "notebook", nb.ID, "err", err)
		return err
	}
	s.log.Trace("notebook save ok", "notebook", nb.ID, "cells", len(nb.Cells))
	return nil
}

// Load reads a notebook by id.
func (s *Store) Load(ctx context.Context, id schema.NotebookID) (schema.Notebook, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM notebooks WHERE id = ?`, string(id)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		s.log.Debug("notebook load miss", "notebook", id)
		return schema.Notebook{}, false, nil
	}
	if err != nil {
		s.log.Warn("notebook load failed", "notebook", id, "err", err)
		return schema.Notebook{}, false, err
	}
	nb, err := nbformat.Decode(body)
	if err != nil {
		s.log.Warn("notebook load failed", "notebook", id, "err", err)
		return schema.Notebook{}, false, err
	}
	return nb, true, nil
}

// List summarizes stored notebooks, most recently updated first.
func (s *Store) List(ctx context.Context) ([]schema.NotebookSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, cell_count, updated_at FROM notebooks ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []schema.NotebookSummary
	for rows.Next() {
		var (
			id, name string
			cells    int
			updated  int64
		)
		if err := rows.Scan(&id, &name, &cells, &updated); err != nil {
			return nil, err
		}
		out = append(out, schema.NotebookSummary{
			ID:        schema.NotebookID(id),
			Name:      name,
			Cells:     cells,
			UpdatedAt: time.Unix(0, updated).UTC(),
		})
	}
	return out, rows.Err()
}

// Delete removes a notebook. Missing notebooks are not an error.
func (s *Store) Delete(ctx context.Context, id schema.NotebookID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, string(id))
	return err
}
