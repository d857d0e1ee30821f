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
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"gittrainer/src/logging"
	"gittrainer/src/model"
)

const (
	selectAttempt = `SELECT id, user_id, task_id, created_at FROM attempts`
	selectTest    = `SELECT id, attempt_id, description, result FROM attempt_tests`
)

// CreateAttempt stores an attempt and all of its tests atomically. If any
// test row fails to insert nothing is persisted.
func (r *Repository) CreateAttempt(ctx context.Context, userID, taskID int64, tests []model.TestResult) (int64, error) {
	for _, test := range tests {
		if !test.Result.Valid() {
			return 0, &StorageError{Op: OpSave, Err: fmt.Errorf("test outcome %q: %w", test.Result, ErrConstraint)}
		}
	}

	var attemptID int64
	err := r.withTx(ctx, OpSave, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO attempts (user_id, task_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
			userID, taskID, time.Now().UTC()).Scan(&attemptID)
		if err != nil {
			return classify(OpSave, "insert attempt", err)
		}

		for i, test := range tests {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO attempt_tests (attempt_id, position, description, result) VALUES ($1, $2, $3, $4)`,
				attemptID, i+1, test.Description, string(test.Result))
			if err != nil {
				return classify(OpSave, fmt.Sprintf("insert test %d", i+1), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.Increment(ctx, logging.AttemptsRecorded, attribute.Int64("task_id", taskID))
	return attemptID, nil
}

func (r *Repository) GetAttempt(ctx context.Context, id int64) (model.Attempt, error) {
	attempts, err := r.queryAttempts(ctx, `WHERE id = $1`, id)
	if err != nil {
		return model.Attempt{}, err
	}
	if len(attempts) == 0 {
		return model.Attempt{}, classify(OpLoad, fmt.Sprintf("attempt %d", id), sql.ErrNoRows)
	}
	return attempts[0], nil
}

// GetAttemptsForTask returns every user's attempts for the task, oldest first.
func (r *Repository) GetAttemptsForTask(ctx context.Context, taskID int64) ([]model.Attempt, error) {
	return r.queryAttempts(ctx, `WHERE task_id = $1`, taskID)
}

func (r *Repository) GetUserAttemptsForTask(ctx context.Context, userID, taskID int64) ([]model.Attempt, error) {
	return r.queryAttempts(ctx, `WHERE user_id = $1 AND task_id = $2`, userID, taskID)
}

// LastAttempt returns the newest attempt of the user for the task.
func (r *Repository) LastAttempt(ctx context.Context, userID, taskID int64) (model.Attempt, error) {
	attempts, err := r.GetUserAttemptsForTask(ctx, userID, taskID)
	if err != nil {
		return model.Attempt{}, err
	}
	if len(attempts) == 0 {
		return model.Attempt{}, classify(OpLoad, fmt.Sprintf("last attempt for task %d", taskID), sql.ErrNoRows)
	}
	return attempts[len(attempts)-1], nil
}

// GetAttemptTests returns the tests of an attempt in insertion order.
func (r *Repository) GetAttemptTests(ctx context.Context, attemptID int64) ([]model.TestResult, error) {
	rows, err := r.db.QueryContext(ctx, selectTest+` WHERE attempt_id = $1 ORDER BY id`, attemptID)
	if err != nil {
		return nil, classify(OpLoad, "attempt tests", err)
	}
	defer rows.Close()
	return scanTests(rows)
}

func (r *Repository) GetTest(ctx context.Context, id int64) (model.TestResult, error) {
	var t model.TestResult
	var result string
	err := r.db.QueryRowContext(ctx, selectTest+` WHERE id = $1`, id).
		Scan(&t.ID, &t.AttemptID, &t.Description, &result)
	if err != nil {
		return model.TestResult{}, classify(OpLoad, fmt.Sprintf("test %d", id), err)
	}
	t.Result = model.TestOutcome(result)
	return t, nil
}

func (r *Repository) DeleteAttempt(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attempts WHERE id = $1`, id)
	if err != nil {
		return classify(OpSave, "delete attempt", err)
	}
	return expectAffected(res, OpSave, fmt.Sprintf("attempt %d", id))
}

func (r *Repository) DeleteUserAttempts(ctx context.Context, userID int64) (int64, error) {
	return r.deleteAttempts(ctx, `DELETE FROM attempts WHERE user_id = $1`, userID)
}

func (r *Repository) DeleteTaskAttempts(ctx context.Context, taskID int64) (int64, error) {
	return r.deleteAttempts(ctx, `DELETE FROM attempts WHERE task_id = $1`, taskID)
}

// DeleteUserTaskAttempts removes one user's attempts at one task.
func (r *Repository) DeleteUserTaskAttempts(ctx context.Context, userID, taskID int64) (int64, error) {
	return r.deleteAttempts(ctx, `DELETE FROM attempts WHERE user_id = $1 AND task_id = $2`, userID, taskID)
}

func (r *Repository) deleteAttempts(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(OpSave, "delete attempts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(OpSave, "delete attempts", err)
	}
	return n, nil
}

// queryAttempts loads the matching attempts and then all of their tests in
// a single follow-up query.
func (r *Repository) queryAttempts(ctx context.Context, where string, args ...any) ([]model.Attempt, error) {
	rows, err := r.db.QueryContext(ctx, selectAttempt+" "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, classify(OpLoad, "attempts", err)
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.UserID, &a.TaskID, &a.Timestamp); err != nil {
			return nil, classify(OpLoad, "scan attempt", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "attempts", err)
	}
	rows.Close()

	if len(attempts) == 0 {
		return attempts, nil
	}

	ids := make([]int64, len(attempts))
	index := make(map[int64]int, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
		index[a.ID] = i
	}

	testRows, err := r.db.QueryContext(ctx, selectTest+` WHERE attempt_id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, classify(OpLoad, "attempt tests", err)
	}
	defer testRows.Close()

	tests, err := scanTests(testRows)
	if err != nil {
		return nil, err
	}
	for _, t := range tests {
		i, ok := index[t.AttemptID]
		if !ok {
			continue
		}
		attempts[i].Tests = append(attempts[i].Tests, t)
	}
	return attempts, nil
}

func scanTests(rows *sql.Rows) ([]model.TestResult, error) {
	var tests []model.TestResult
	for rows.Next() {
		var t model.TestResult
		var result string
		if err := rows.Scan(&t.ID, &t.AttemptID, &t.Description, &result); err != nil {
			return nil, classify(OpLoad, "scan test", err)
		}
		t.Result = model.TestOutcome(result)
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "attempt tests", err)
	}
	return tests, nil
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
