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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"

	"gittrainer/src/containerization"
	"gittrainer/src/logging"
	"gittrainer/src/model"
	"gittrainer/src/processor"
	"gittrainer/src/repository"
	"gittrainer/src/session"
	"gittrainer/src/tui"
)

// Host size used when the output is not a terminal.
const (
	defaultRows = 24
	defaultCols = 80
)

// ─── tasks ───────────────────────────────────────────────────────────────────

type TasksCmd struct {
	ID int64 `arg:"" optional:"" help:"Task to describe in full."`
}

func (c *TasksCmd) Run(ctx context.Context, g *Globals) error {
	repo, user, err := g.Store(ctx)
	if err != nil {
		return err
	}

	if c.ID != 0 {
		task, err := repo.GetTaskByID(ctx, c.ID)
		if err != nil {
			return err
		}
		status, err := repo.GetTaskStatus(ctx, task.ID, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "%s (%s)\nStatus: %s\n\n%s\n", task.Name, task.WorkName, status, task.Description)
		if task.ExtendedDescription != "" {
			fmt.Fprintf(g.out, "\n%s\n", task.ExtendedDescription)
		}
		return nil
	}

	tasks, err := repo.GetTasksForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(g.out, "no tasks in the catalog")
		return nil
	}

	w := tabwriter.NewWriter(g.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tATTEMPTS\tLAST")
	for _, task := range tasks {
		last := "-"
		if n := len(task.Attempts); n > 0 {
			last = attemptVerdict(task.Attempts[n-1]) + " " + task.Attempts[n-1].LocalTime()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", task.ID, task.Name, task.Status, len(task.Attempts), last)
	}
	return w.Flush()
}

// ─── run ─────────────────────────────────────────────────────────────────────

type RunCmd struct {
	ID int64 `arg:"" help:"Task to work on."`
}

func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	repo, user, err := g.Store(ctx)
	if err != nil {
		return err
	}
	ctrl, err := g.Engine(ctx)
	if err != nil {
		return err
	}
	task, err := repo.GetTaskByID(ctx, c.ID)
	if err != nil {
		return err
	}

	status, err := repo.GetTaskStatus(ctx, task.ID, user.ID)
	if err != nil {
		return err
	}
	if status == model.TaskNotInProgress {
		if err := repo.UpdateTaskStatus(ctx, task.ID, user.ID, model.TaskInProgress); err != nil {
			return err
		}
	}

	grader := processor.NewPipeline(ctrl, repo, user.ID, g.cfg.TasksRoot)
	for {
		state, err := attach(ctx, g, ctrl, grader, task)
		if err != nil {
			return err
		}
		if state != session.RestartRequested {
			return nil
		}
		fmt.Fprintf(g.out, "Restarting %s from scratch...\n", task.Name)
		if _, err := ctrl.RestartContainer(ctx, task); err != nil {
			return err
		}
	}
}

// attach runs one interactive session and reports how it ended.
func attach(ctx context.Context, g *Globals, ctrl *containerization.Controller, grader session.Grader, task model.Task) (session.State, error) {
	rows, cols := hostSize(g.tty)
	s, err := session.Open(ctx, ctrl, grader, task, rows, cols)
	if err != nil {
		return session.Exited, err
	}

	program := tea.NewProgram(tui.New(ctx, s, g.cfg.PollInterval), tea.WithAltScreen(), tea.WithContext(ctx))
	final, runErr := program.Run()
	outcome := s.Close()

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return outcome.State, fmt.Errorf("terminal: %w", runErr)
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		return outcome.State, m.Err()
	}
	if outcome.Err != nil {
		return outcome.State, outcome.Err
	}
	if attempt, ok := s.LastAttempt(); ok {
		printAttempt(g.out, attempt)
	}
	logging.Log(fmt.Sprintf("Session %s ended as %s (%d bytes from container)",
		s.ID, outcome.State, s.BytesFrom(session.OriginConsole)+s.BytesFrom(session.OriginStdout)), slog.LevelInfo)
	return outcome.State, ctx.Err()
}

// ─── restart ─────────────────────────────────────────────────────────────────

type RestartCmd struct {
	ID int64 `arg:"" help:"Task to reset."`
}

func (c *RestartCmd) Run(ctx context.Context, g *Globals) error {
	repo, user, err := g.Store(ctx)
	if err != nil {
		return err
	}
	ctrl, err := g.Engine(ctx)
	if err != nil {
		return err
	}
	task, err := repo.GetTaskByID(ctx, c.ID)
	if err != nil {
		return err
	}
	if _, err := ctrl.RestartContainer(ctx, task); err != nil {
		return err
	}
	if err := repo.UpdateTaskStatus(ctx, task.ID, user.ID, model.TaskNotInProgress); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "%s restarted\n", task.Name)
	return nil
}

// ─── attempts ────────────────────────────────────────────────────────────────

type AttemptsCmd struct {
	ID       int64 `arg:"" help:"Task whose attempts to show."`
	AllUsers bool  `name:"all-users" help:"Include every user's attempts."`
	Last     bool  `name:"last" help:"Only show the most recent attempt."`
}

func (c *AttemptsCmd) Run(ctx context.Context, g *Globals) error {
	repo, user, err := g.Store(ctx)
	if err != nil {
		return err
	}
	task, err := repo.GetTaskByID(ctx, c.ID)
	if err != nil {
		return err
	}

	var attempts []model.Attempt
	switch {
	case c.Last:
		attempt, err := repo.LastAttempt(ctx, user.ID, task.ID)
		if err != nil && !repository.IsNotFound(err) {
			return err
		}
		if err == nil {
			attempts = []model.Attempt{attempt}
		}
	case c.AllUsers:
		attempts, err = repo.GetAttemptsForTask(ctx, task.ID)
	default:
		attempts, err = repo.GetUserAttemptsForTask(ctx, user.ID, task.ID)
	}
	if err != nil {
		return err
	}

	if len(attempts) == 0 {
		fmt.Fprintf(g.out, "no attempts for %s\n", task.Name)
		return nil
	}
	for _, attempt := range attempts {
		printAttempt(g.out, attempt)
	}
	return nil
}

// ─── build ───────────────────────────────────────────────────────────────────

type BuildCmd struct {
	IDs []int64 `arg:"" optional:"" help:"Tasks to build; every task when omitted."`
}

func (c *BuildCmd) Run(ctx context.Context, g *Globals) error {
	repo, _, err := g.Store(ctx)
	if err != nil {
		return err
	}
	ctrl, err := g.Engine(ctx)
	if err != nil {
		return err
	}

	var tasks []model.Task
	if len(c.IDs) == 0 {
		if tasks, err = repo.GetAllTasks(ctx); err != nil {
			return err
		}
	}
	for _, id := range c.IDs {
		task, err := repo.GetTaskByID(ctx, id)
		if err != nil {
			return err
		}
		tasks = append(tasks, task)
	}

	for _, task := range tasks {
		fmt.Fprintf(g.out, "==> %s (%s)\n", task.ImageName(), task.Name)
		failures, err := ctrl.BuildImage(ctx, task, func(line string) {
			fmt.Fprintln(g.out, line)
		})
		if err != nil {
			return err
		}
		if failures > 0 {
			fmt.Fprintf(g.out, "%s: %d build steps reported errors\n", task.ImageName(), failures)
		}
	}
	return nil
}

// ─── migrate ─────────────────────────────────────────────────────────────────

type MigrateCmd struct {
	Dir string `name:"dir" type:"existingdir" help:"Also apply migrations from this directory."`
}

func (c *MigrateCmd) Run(ctx context.Context, g *Globals) error {
	repo, _, err := g.Store(ctx)
	if err != nil {
		return err
	}
	if c.Dir != "" {
		applied, err := repo.Migrate(ctx, c.Dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(g.out, "applied %d migrations from %s\n", applied, c.Dir)
	}
	backfilled, err := repo.BackfillStatuses(ctx)
	if err != nil {
		return err
	}
	count, err := repo.CountTasks(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "schema up to date: %d tasks, %d statuses backfilled\n", count, backfilled)
	return nil
}

// ─── watch ───────────────────────────────────────────────────────────────────

type WatchCmd struct {
	Fallback time.Duration `name:"fallback" default:"90s" help:"Backfill at least this often even without notifications."`
}

func (c *WatchCmd) Run(ctx context.Context, g *Globals) error {
	repo, _, err := g.Store(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "watching %s for catalog changes\n", g.cfg.Database.Name)
	return repo.WatchCatalog(ctx, g.cfg.Database.DSN(), c.Fallback)
}

// ─── users ───────────────────────────────────────────────────────────────────

type UsersCmd struct {
	List   UsersListCmd   `cmd:"" default:"1" help:"List users."`
	Rename UsersRenameCmd `cmd:"" help:"Rename a user."`
	Delete UsersDeleteCmd `cmd:"" help:"Delete a user with all of their attempts."`
}

type UsersListCmd struct{}

func (c *UsersListCmd) Run(ctx context.Context, g *Globals) error {
	repo, current, err := g.Store(ctx)
	if err != nil {
		return err
	}
	users, err := repo.ListUsers(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tCREATED")
	for _, u := range users {
		name := u.Username
		if u.ID == current.ID {
			name += " *"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, name, u.CreatedAt.In(time.Local).Format(time.DateTime))
	}
	return w.Flush()
}

type UsersRenameCmd struct {
	ID       int64  `arg:"" help:"User to rename."`
	Username string `arg:"" help:"New username."`
}

func (c *UsersRenameCmd) Run(ctx context.Context, g *Globals) error {
	repo, _, err := g.Store(ctx)
	if err != nil {
		return err
	}
	if err := repo.RenameUser(ctx, c.ID, c.Username); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "user %d is now %s\n", c.ID, model.NormalizeUsername(c.Username))
	return nil
}

type UsersDeleteCmd struct {
	ID int64 `arg:"" help:"User to delete."`
}

func (c *UsersDeleteCmd) Run(ctx context.Context, g *Globals) error {
	repo, current, err := g.Store(ctx)
	if err != nil {
		return err
	}
	if c.ID == current.ID {
		return fmt.Errorf("refusing to delete the current user %s", current.Username)
	}
	if err := repo.DeleteUser(ctx, c.ID); err != nil {
		return err
	}
	fmt.Fprintf(g.out, "user %d deleted\n", c.ID)
	return nil
}

// ─── cleanup ─────────────────────────────────────────────────────────────────

type CleanupCmd struct {
	User     string `name:"user" help:"Only this user's containers (default: every user)."`
	Task     string `name:"task" help:"Only containers of this task work name."`
	Attempts bool   `name:"attempts" help:"Also delete the matching attempts."`
}

// Validate rejects an attempt deletion without a scope before anything runs.
func (c *CleanupCmd) Validate() error {
	if c.Attempts && c.User == "" && c.Task == "" {
		return errors.New("--attempts needs --user or --task")
	}
	return nil
}

func (c *CleanupCmd) Run(ctx context.Context, g *Globals) error {
	// Resolve the attempt scope first so a bad name removes nothing.
	var deleteAttempts func(context.Context) (int64, error)
	if c.Attempts {
		var err error
		if deleteAttempts, err = c.attemptScope(ctx, g); err != nil {
			return err
		}
	}

	ctrl, err := g.Engine(ctx)
	if err != nil {
		return err
	}
	removed, err := ctrl.Cleanup(ctx, model.NormalizeUsername(c.User), c.Task)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "removed %d containers\n", removed)

	if deleteAttempts == nil {
		return nil
	}
	deleted, err := deleteAttempts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.out, "deleted %d attempts\n", deleted)
	return nil
}

// attemptScope looks up the named task and user and returns the deletion
// matching exactly the flags given.
func (c *CleanupCmd) attemptScope(ctx context.Context, g *Globals) (func(context.Context) (int64, error), error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	repo, _, err := g.Store(ctx)
	if err != nil {
		return nil, err
	}

	var task model.Task
	if c.Task != "" {
		if task, err = repo.GetTaskByWorkName(ctx, c.Task); err != nil {
			return nil, err
		}
	}
	var user model.User
	if c.User != "" {
		if user, err = repo.GetUserByUsername(ctx, c.User); err != nil {
			return nil, err
		}
	}

	switch {
	case c.Task != "" && c.User != "":
		return func(ctx context.Context) (int64, error) {
			return repo.DeleteUserTaskAttempts(ctx, user.ID, task.ID)
		}, nil
	case c.Task != "":
		return func(ctx context.Context) (int64, error) {
			return repo.DeleteTaskAttempts(ctx, task.ID)
		}, nil
	default:
		return func(ctx context.Context) (int64, error) {
			return repo.DeleteUserAttempts(ctx, user.ID)
		}, nil
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// hostSize returns the rows and columns of the terminal behind f.
func hostSize(f *os.File) (rows, cols int) {
	if f == nil || !term.IsTerminal(f.Fd()) {
		return defaultRows, defaultCols
	}
	width, height, err := term.GetSize(f.Fd())
	if err != nil || width <= 0 || height <= 0 {
		return defaultRows, defaultCols
	}
	return height, width
}

func attemptVerdict(a model.Attempt) string {
	if a.Passed() {
		return "passed"
	}
	return "failed"
}

func printAttempt(w io.Writer, a model.Attempt) {
	fmt.Fprintf(w, "Attempt %d (%s) %s\n", a.ID, a.LocalTime(), attemptVerdict(a))
	for i, t := range a.Tests {
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, t.Result, strings.ReplaceAll(t.Description, "\n", "\n     "))
	}
}
