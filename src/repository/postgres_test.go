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
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gittrainer/src/model"
)

// openLive connects to a throwaway database named by TRAINER_TEST_DATABASE_URL.
// The tables are truncated first.
func openLive(t *testing.T) *Repository {
	t.Helper()
	dsn := os.Getenv("TRAINER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRAINER_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	repo := New(db, "Ann Lee")
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.Init(ctx, "../../db/schema.sql", "../../db/migrations"))
	_, err = db.ExecContext(ctx, `TRUNCATE attempt_tests, attempts, user_task_status, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return repo
}

func TestLiveUserRoundTrip(t *testing.T) {
	repo := openLive(t)
	ctx := context.Background()

	created, err := repo.CreateUser(ctx, "Ann Lee")
	require.NoError(t, err)

	loaded, err := repo.GetUserByUsername(ctx, "Ann-Lee")
	require.NoError(t, err)
	assert.Equal(t, created.ID, loaded.ID)

	count, err := repo.CountTasks(ctx)
	require.NoError(t, err)
	tasks, err := repo.GetTasksForUser(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, tasks, int(count))
	for _, task := range tasks {
		assert.Equal(t, model.TaskNotInProgress, task.Status)
	}
	statuses, err := repo.GetUserStatuses(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, statuses, int(count))
	for _, s := range statuses {
		assert.Equal(t, created.ID, s.UserID)
	}

	_, err = repo.CreateUser(ctx, "Ann-Lee")
	require.ErrorIs(t, err, ErrConstraint)
}

func TestLiveInitIsIdempotent(t *testing.T) {
	repo := openLive(t)
	ctx := context.Background()

	before, err := repo.CountTasks(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.Init(ctx, "../../db/schema.sql", "../../db/migrations"))
	after, err := repo.CountTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLiveAttemptPreservesTestOrder(t *testing.T) {
	repo := openLive(t)
	ctx := context.Background()

	user, err := repo.CurrentUser(ctx)
	require.NoError(t, err)
	tasks, err := repo.GetAllTasks(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	id, err := repo.CreateAttempt(ctx, user.ID, tasks[0].ID, []model.TestResult{
		{Description: "first", Result: model.TestPassed},
		{Description: "second", Result: model.TestFailed},
		{Description: "third", Result: model.TestNotExecuted},
	})
	require.NoError(t, err)

	tests, err := repo.GetAttemptTests(ctx, id)
	require.NoError(t, err)
	require.Len(t, tests, 3)
	assert.Equal(t, []string{"first", "second", "third"},
		[]string{tests[0].Description, tests[1].Description, tests[2].Description})

	last, err := repo.LastAttempt(ctx, user.ID, tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, id, last.ID)

	require.NoError(t, repo.DeleteAttempt(ctx, id))
	_, err = repo.GetAttempt(ctx, id)
	require.True(t, IsNotFound(err))
}
