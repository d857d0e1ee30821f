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
	"fmt"

	"gittrainer/src/model"
)

const selectTask = `SELECT id, name, work_name, description, extended_description FROM tasks`

func (r *Repository) GetAllTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, selectTask+` ORDER BY id`)
	if err != nil {
		return nil, classify(OpLoad, "list tasks", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.WorkName, &t.Description, &t.ExtendedDescription); err != nil {
			return nil, classify(OpLoad, "scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "list tasks", err)
	}
	return tasks, nil
}

func (r *Repository) GetTaskByID(ctx context.Context, id int64) (model.Task, error) {
	var t model.Task
	err := r.db.QueryRowContext(ctx, selectTask+` WHERE id = $1`, id).
		Scan(&t.ID, &t.Name, &t.WorkName, &t.Description, &t.ExtendedDescription)
	if err != nil {
		return model.Task{}, classify(OpLoad, fmt.Sprintf("task %d", id), err)
	}
	return t, nil
}

func (r *Repository) GetTaskByWorkName(ctx context.Context, workName string) (model.Task, error) {
	var t model.Task
	err := r.db.QueryRowContext(ctx, selectTask+` WHERE work_name = $1`, workName).
		Scan(&t.ID, &t.Name, &t.WorkName, &t.Description, &t.ExtendedDescription)
	if err != nil {
		return model.Task{}, classify(OpLoad, "task "+workName, err)
	}
	return t, nil
}

func (r *Repository) CountTasks(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, classify(OpLoad, "count tasks", err)
	}
	return n, nil
}

// GetTasksForUser lists the catalog with the user's status and, for each
// task, that user's attempts with their tests.
func (r *Repository) GetTasksForUser(ctx context.Context, userID int64) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.work_name, t.description, t.extended_description, s.status
		 FROM user_task_status s
		 JOIN tasks t ON t.id = s.task_id
		 WHERE s.user_id = $1
		 ORDER BY t.id`, userID)
	if err != nil {
		return nil, classify(OpLoad, "tasks for user", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		var status string
		if err := rows.Scan(&t.ID, &t.Name, &t.WorkName, &t.Description, &t.ExtendedDescription, &status); err != nil {
			return nil, classify(OpLoad, "scan task", err)
		}
		t.Status = model.TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "tasks for user", err)
	}
	rows.Close()

	attempts, err := r.queryAttempts(ctx, `WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	byTask := make(map[int64][]model.Attempt)
	for _, a := range attempts {
		byTask[a.TaskID] = append(byTask[a.TaskID], a)
	}
	for i := range tasks {
		tasks[i].Attempts = byTask[tasks[i].ID]
	}
	return tasks, nil
}

func (r *Repository) GetTaskStatus(ctx context.Context, taskID, userID int64) (model.TaskStatus, error) {
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT status FROM user_task_status WHERE user_id = $1 AND task_id = $2`,
		userID, taskID).Scan(&status)
	if err != nil {
		return "", classify(OpLoad, fmt.Sprintf("status of task %d", taskID), err)
	}
	return model.TaskStatus(status), nil
}

// GetUserStatuses returns the user's status rows ordered by task.
func (r *Repository) GetUserStatuses(ctx context.Context, userID int64) ([]model.UserTaskStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, task_id, status FROM user_task_status WHERE user_id = $1 ORDER BY task_id`, userID)
	if err != nil {
		return nil, classify(OpLoad, "list statuses", err)
	}
	defer rows.Close()

	var statuses []model.UserTaskStatus
	for rows.Next() {
		var s model.UserTaskStatus
		var status string
		if err := rows.Scan(&s.UserID, &s.TaskID, &status); err != nil {
			return nil, classify(OpLoad, "scan status", err)
		}
		s.Status = model.TaskStatus(status)
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(OpLoad, "list statuses", err)
	}
	return statuses, nil
}

func (r *Repository) UpdateTaskStatus(ctx context.Context, taskID, userID int64, status model.TaskStatus) error {
	if !status.Valid() {
		return &StorageError{Op: OpSave, Err: fmt.Errorf("status %q: %w", status, ErrConstraint)}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_task_status SET status = $1 WHERE user_id = $2 AND task_id = $3`,
		string(status), userID, taskID)
	if err != nil {
		return classify(OpSave, "update task status", err)
	}
	return expectAffected(res, OpSave, fmt.Sprintf("status of task %d", taskID))
}

// BackfillStatuses inserts a not_in_progress row for every user/task pair
// that has none, e.g. after a migration added tasks.
func (r *Repository) BackfillStatuses(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO user_task_status (user_id, task_id, status)
		 SELECT u.id, t.id, $1 FROM users u CROSS JOIN tasks t
		 ON CONFLICT (user_id, task_id) DO NOTHING`,
		string(model.TaskNotInProgress))
	if err != nil {
		return 0, classify(OpMigrate, "backfill statuses", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(OpMigrate, "backfill statuses", err)
	}
	return n, nil
}
