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
	"fmt"
	"log/slog"
	"time"

	"gittrainer/src/logging"
	"gittrainer/src/model"
)

const selectUser = `SELECT id, username, created_at FROM users`

// CreateUser inserts the user and seeds a not_in_progress status for every
// task in the catalog, in one transaction.
func (r *Repository) CreateUser(ctx context.Context, username string) (model.User, error) {
	username = model.NormalizeUsername(username)
	if username == "" {
		return model.User{}, &StorageError{Op: OpSave, Err: fmt.Errorf("empty username: %w", ErrConstraint)}
	}

	var user model.User
	err := r.withTx(ctx, OpSave, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO users (username, created_at) VALUES ($1, $2) RETURNING id, username, created_at`,
			username, time.Now().UTC()).Scan(&user.ID, &user.Username, &user.CreatedAt)
		if err != nil {
			return classify(OpSave, "insert user", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_task_status (user_id, task_id, status)
			 SELECT $1, id, $2 FROM tasks
			 ON CONFLICT (user_id, task_id) DO NOTHING`,
			user.ID, string(model.TaskNotInProgress))
		if err != nil {
			return classify(OpSave, "seed task statuses", err)
		}
		return nil
	})
	if err != nil {
		return model.User{}, err
	}

	logging.Log(fmt.Sprintf("Created user %s (%d)", user.Username, user.ID), slog.LevelInfo)
	return user, nil
}

func (r *Repository) UserExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		model.NormalizeUsername(username)).Scan(&exists)
	if err != nil {
		return false, classify(OpLoad, "user exists", err)
	}
	return exists, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+` WHERE username = $1`, model.NormalizeUsername(username))
	return scanUser(row, "user "+username)
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (model.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id)
	return scanUser(row, fmt.Sprintf("user %d", id))
}

func (r *Repository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUser+` ORDER BY id`)
	if err != nil {
		return nil, classify(OpLoad, "list users", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, classify(OpLoad, "scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "list users", err)
	}
	return users, nil
}

func (r *Repository) RenameUser(ctx context.Context, id int64, username string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET username = $1 WHERE id = $2`,
		model.NormalizeUsername(username), id)
	if err != nil {
		return classify(OpSave, "rename user", err)
	}
	return expectAffected(res, OpSave, fmt.Sprintf("user %d", id))
}

// DeleteUser removes the user; statuses and attempts go with it.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return classify(OpSave, "delete user", err)
	}
	return expectAffected(res, OpSave, fmt.Sprintf("user %d", id))
}

// CurrentUser returns the operating user, creating it on first run.
func (r *Repository) CurrentUser(ctx context.Context) (model.User, error) {
	exists, err := r.UserExists(ctx, r.username)
	if err != nil {
		return model.User{}, err
	}
	if !exists {
		return r.CreateUser(ctx, r.username)
	}
	return r.GetUserByUsername(ctx, r.username)
}

func scanUser(row *sql.Row, what string) (model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
		return model.User{}, classify(OpLoad, what, err)
	}
	return u, nil
}

func expectAffected(res sql.Result, op, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, what, err)
	}
	if n == 0 {
		return classify(op, what, sql.ErrNoRows)
	}
	return nil
}
