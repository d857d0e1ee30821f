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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gittrainer/src/logging"
)

const migrationScript = "up.sql"

// migrationLock serializes schema changes between concurrent processes.
const migrationLock int64 = 0x67697474

func lockSchema(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLock); err != nil {
		return classify(OpMigrate, "lock schema", err)
	}
	return nil
}

// Init applies the baseline schema, every pending migration in name order,
// and backfills status rows for user/task pairs that have none.
func (r *Repository) Init(ctx context.Context, schemaPath, migrationsDir string) error {
	ctx, span := logging.StartSpan(ctx, "repository.init")
	defer span.End()

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return &StorageError{Op: OpMigrate, Err: fmt.Errorf("read schema %s: %w", schemaPath, err)}
	}
	err = r.withTx(ctx, OpMigrate, func(tx *sql.Tx) error {
		if err := lockSchema(ctx, tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
			return classify(OpMigrate, "apply schema", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	applied, err := r.Migrate(ctx, migrationsDir)
	if err != nil {
		return err
	}
	logging.UpdateSpanValue(ctx, "migrations_applied", int64(applied))

	filled, err := r.BackfillStatuses(ctx)
	if err != nil {
		return err
	}
	logging.UpdateSpanValue(ctx, "statuses_backfilled", filled)
	return nil
}

// Migrate applies each subdirectory of dir whose name is not yet recorded.
// A missing directory means there is nothing to apply.
func (r *Repository) Migrate(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: OpMigrate, Err: fmt.Errorf("read migrations dir: %w", err)}
	}

	applied := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		script, err := os.ReadFile(filepath.Join(dir, name, migrationScript))
		if errors.Is(err, fs.ErrNotExist) {
			logging.Log(fmt.Sprintf("Migration %s has no %s, skipping", name, migrationScript), slog.LevelWarn)
			continue
		}
		if err != nil {
			return applied, &StorageError{Op: OpMigrate, Err: fmt.Errorf("read migration %s: %w", name, err)}
		}

		ok, err := r.applyMigration(ctx, name, string(script))
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
			logging.Log("Applied migration "+name, slog.LevelInfo)
		}
	}
	return applied, nil
}

func (r *Repository) applyMigration(ctx context.Context, name, script string) (bool, error) {
	ran := false
	err := r.withTx(ctx, OpMigrate, func(tx *sql.Tx) error {
		if err := lockSchema(ctx, tx); err != nil {
			return err
		}
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&exists)
		if err != nil {
			return classify(OpMigrate, "check migration "+name, err)
		}
		if exists {
			return nil
		}
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return classify(OpMigrate, "run migration "+name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			return classify(OpMigrate, "record migration "+name, err)
		}
		ran = true
		return nil
	})
	return ran, err
}
