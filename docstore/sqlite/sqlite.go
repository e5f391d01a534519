// Package sqlite keeps documents in a local SQLite database. It is the
// offline backend for development and self-hosting without a GitHub token.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/fault"
	"github.com/aivoicefromthevoid/mira/migrations"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store implements docstore.Store over a documents table. Versions are
// integers that increase by one on every write.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

var (
	_ docstore.Store     = (*Store)(nil)
	_ docstore.Historian = (*Store)(nil)
)

// Open opens (creating if necessary) the database at path and migrates it.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fault.StoreUnavailable("open "+path, err).
			WithHint("Check that the directory for store.sqlite_path exists and is writable")
	}

	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle and applies migrations.
func New(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	logger = logger.With().Str("component", "sqlite_store").Logger()
	if err := migrations.Run(db, logger); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Read implements docstore.Store.Read.
func (s *Store) Read(ctx context.Context, path string) (*docstore.Blob, error) {
	query, args, err := sq.Select("content", "version").
		From("documents").
		Where(sq.Eq{"path": path}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build read query: %w", err)
	}

	var (
		content []byte
		version int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&content, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.StoreUnavailable("read "+path, err)
	}
	return &docstore.Blob{Data: content, Version: strconv.FormatInt(version, 10)}, nil
}

// Write implements docstore.Store.Write.
func (s *Store) Write(ctx context.Context, path string, data []byte, message, version string) (string, error) {
	op := "write " + path
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", classify(op, err)
	}
	defer tx.Rollback()

	query, args, err := sq.Select("version").From("documents").Where(sq.Eq{"path": path}).ToSql()
	if err != nil {
		return "", fmt.Errorf("build version query: %w", err)
	}
	var current int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&current)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
	} else if err != nil {
		return "", classify(op, err)
	}

	if version != "" {
		want, perr := strconv.ParseInt(version, 10, 64)
		if perr != nil || !exists || want != current {
			return "", fault.StoreConflict(op, fmt.Errorf("version %q is stale", version))
		}
	}

	now := time.Now().Unix()
	next := current + 1
	var stmt sq.Sqlizer
	if exists {
		stmt = sq.Update("documents").
			Set("content", data).
			Set("version", next).
			Set("message", message).
			Set("updated_at", now).
			Where(sq.Eq{"path": path, "version": current})
	} else {
		stmt = sq.Insert("documents").
			Columns("path", "content", "version", "message", "updated_at").
			Values(path, data, next, message, now)
	}
	query, args, err = stmt.ToSql()
	if err != nil {
		return "", fmt.Errorf("build write query: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return "", classify(op, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", classify(op, err)
	} else if n == 0 {
		return "", fault.StoreConflict(op, fmt.Errorf("version %d changed during write", current))
	}

	query, args, err = sq.Insert("document_history").
		Columns("path", "version", "message", "created_at").
		Values(path, next, message, now).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build history query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return "", classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return "", classify("commit "+path, err)
	}

	s.logger.Debug().Str("path", path).Int64("version", next).Str("message", message).Msg("Document written")
	return strconv.FormatInt(next, 10), nil
}

// classify maps a database error onto the store taxonomy. A concurrent writer
// shows up as a busy or locked database, or as a unique violation when both
// writers created the same path, and is reported as a conflict.
func classify(op string, err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch {
		case sqlErr.Code == sqlite3.ErrBusy, sqlErr.Code == sqlite3.ErrLocked,
			sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey, sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fault.StoreConflict(op, err)
		}
	}
	return fault.StoreUnavailable(op, err)
}

// History implements docstore.Historian.
func (s *Store) History(ctx context.Context, path string) ([]string, error) {
	query, args, err := sq.Select("message").
		From("document_history").
		Where(sq.Eq{"path": path}).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.StoreUnavailable("history "+path, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}
