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

package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gittrainer/src/containerization"
	"gittrainer/src/logging"
	"gittrainer/src/model"
)

// TestsDir is where a task's test scripts are copied inside its container.
const TestsDir = "/etc/git-trainer/tests"

var ErrNoTests = errors.New("task has no test scripts")

// Runner executes things inside the task container.
type Runner interface {
	CopyDir(ctx context.Context, task model.Task, src, dst string) error
	Exec(ctx context.Context, task model.Task, cmd []string) (containerization.ExecResult, error)
}

// Store persists the outcome of a run.
type Store interface {
	CreateAttempt(ctx context.Context, userID, taskID int64, tests []model.TestResult) (int64, error)
	GetTaskStatus(ctx context.Context, taskID, userID int64) (model.TaskStatus, error)
	UpdateTaskStatus(ctx context.Context, taskID, userID int64, status model.TaskStatus) error
}

// Pipeline grades one user's work on a task by running the task's numbered
// scripts in order and stopping at the first failure.
type Pipeline struct {
	runner    Runner
	store     Store
	userID    int64
	tasksRoot string
}

func NewPipeline(runner Runner, store Store, userID int64, tasksRoot string) *Pipeline {
	return &Pipeline{
		runner:    runner,
		store:     store,
		userID:    userID,
		tasksRoot: tasksRoot,
	}
}

func (p *Pipeline) testsPath(task model.Task) string {
	return filepath.Join(p.tasksRoot, task.WorkName, "tests")
}

// CountSteps returns N for the scripts 1.sh..N.sh present in the task's
// tests directory. Numbering stops at the first gap.
func (p *Pipeline) CountSteps(task model.Task) (int, error) {
	dir := p.testsPath(task)
	n := 0
	for {
		_, err := os.Stat(filepath.Join(dir, scriptName(n+1)))
		if errors.Is(err, fs.ErrNotExist) {
			return n, nil
		}
		if err != nil {
			return 0, fmt.Errorf("stat test %d of %s: %w", n+1, task.WorkName, err)
		}
		n++
	}
}

// Run copies the tests in, executes them and stores the attempt. A fully
// passing attempt moves the task to done unless it already is done or a
// reviewer approved it; otherwise the status is left alone.
func (p *Pipeline) Run(ctx context.Context, task model.Task) (model.Attempt, error) {
	ctx, span := logging.StartSpan(ctx, "processor.run", attribute.String("task", task.WorkName))
	defer span.End()

	steps, err := p.CountSteps(task)
	if err != nil {
		return model.Attempt{}, err
	}
	if steps == 0 {
		return model.Attempt{}, fmt.Errorf("%s: %w", task.WorkName, ErrNoTests)
	}
	logging.UpdateSpanValue(ctx, "steps", int64(steps))

	if err := p.runner.CopyDir(ctx, task, p.testsPath(task), TestsDir); err != nil {
		return model.Attempt{}, err
	}

	logging.Log(fmt.Sprintf("Grading task %s for user %d (%d steps)", task.WorkName, p.userID, steps), slog.LevelInfo)

	tests := make([]model.TestResult, 0, steps)
	failed := false
	for i := 1; i <= steps; i++ {
		if failed {
			tests = append(tests, model.TestResult{
				Description: fmt.Sprintf("Test %d skipped: an earlier test failed", i),
				Result:      model.TestNotExecuted,
			})
			logging.Increment(ctx, logging.TestsExecuted, attribute.String("result", string(model.TestNotExecuted)))
			continue
		}

		result, err := p.runStep(ctx, task, i)
		if err != nil {
			return model.Attempt{}, err
		}
		tests = append(tests, result)
		logging.Increment(ctx, logging.TestsExecuted, attribute.String("result", string(result.Result)))
		if result.Result == model.TestFailed {
			failed = true
		}
	}

	attemptID, err := p.store.CreateAttempt(ctx, p.userID, task.ID, tests)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("store attempt: %w", err)
	}
	for i := range tests {
		tests[i].AttemptID = attemptID
	}

	attempt := model.Attempt{
		ID:        attemptID,
		UserID:    p.userID,
		TaskID:    task.ID,
		Timestamp: time.Now().UTC(),
		Tests:     tests,
	}

	if attempt.Passed() {
		if err := p.markDone(ctx, task); err != nil {
			return attempt, err
		}
	}

	logging.Log(fmt.Sprintf("Attempt %d for task %s: passed=%t", attemptID, task.WorkName, attempt.Passed()), slog.LevelInfo)
	return attempt, nil
}

func (p *Pipeline) markDone(ctx context.Context, task model.Task) error {
	current, err := p.store.GetTaskStatus(ctx, task.ID, p.userID)
	if err != nil {
		return fmt.Errorf("read task status: %w", err)
	}
	switch current {
	case model.TaskNotInProgress, model.TaskInProgress, model.TaskPending:
	default:
		return nil
	}
	if err := p.store.UpdateTaskStatus(ctx, task.ID, p.userID, model.TaskDone); err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	return nil
}

func (p *Pipeline) runStep(ctx context.Context, task model.Task, i int) (model.TestResult, error) {
	ctx, span := logging.StartSpan(ctx, "processor.step", attribute.Int("step", i))
	defer span.End()

	res, err := p.runner.Exec(ctx, task, []string{"sh", path.Join(TestsDir, scriptName(i))})
	if err != nil {
		return model.TestResult{}, fmt.Errorf("run test %d: %w", i, err)
	}
	logging.UpdateSpanValue(ctx, "exit_code", int64(res.ExitCode))

	description := strings.TrimSpace(strings.TrimSpace(res.Stdout) + "\n" + strings.TrimSpace(res.Stderr))
	if description == "" {
		description = "Test " + strconv.Itoa(i)
	}

	outcome := model.TestPassed
	if res.ExitCode != 0 {
		outcome = model.TestFailed
	}
	return model.TestResult{Description: description, Result: outcome}, nil
}

func scriptName(i int) string {
	return strconv.Itoa(i) + ".sh"
}
