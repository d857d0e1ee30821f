// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package repository persists tasks, users, per-user task status and graded
// attempts in Postgres. Every multi-row write runs inside one transaction.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"gittrainer/src/logging"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConstraint = errors.New("constraint violation")
)

const (
	OpSave    = "save"
	OpLoad    = "load"
	OpMigrate = "migrate"
)

// StorageError tells save, load and migrate failures apart.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

type Repository struct {
	db       *sql.DB
	username string
}

// Open connects to Postgres through lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &StorageError{Op: OpLoad, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StorageError{Op: OpLoad, Err: fmt.Errorf("ping: %w", err)}
	}
	return db, nil
}

// New binds the repository to an open store and the operating username.
func New(db *sql.DB, username string) *Repository {
	return &Repository{db: db, username: username}
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, "begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(op, "commit", err)
	}
	return nil
}

func classify(op, what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &StorageError{Op: op, Err: fmt.Errorf("%s: %w", what, ErrNotFound)}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return &StorageError{Op: op, Err: fmt.Errorf("%s: %w: %s", what, ErrConstraint, pqErr.Message)}
	}
	logging.Increment(context.Background(), logging.StorageFailures)
	logging.Log(fmt.Sprintf("Repository %s failed (%s): %v", op, what, err), slog.LevelError)
	return &StorageError{Op: op, Err: fmt.Errorf("%s: %w", what, err)}
}
