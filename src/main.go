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
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kong"

	"gittrainer/src/config"
	"gittrainer/src/containerization"
	"gittrainer/src/logging"
	"gittrainer/src/model"
	"gittrainer/src/repository"
)

// Globals is injected into every command. Storage and the engine are opened
// lazily so commands only pay for what they touch.
type Globals struct {
	envFile string
	out     io.Writer
	tty     *os.File

	bootOnce sync.Once
	bootErr  error
	cfg      config.Config

	storeOnce sync.Once
	storeErr  error
	repo      *repository.Repository
	user      model.User

	engineOnce sync.Once
	engineErr  error
	ctrl       *containerization.Controller

	closeMu sync.Mutex
	closers []func()
}

func (g *Globals) addCloser(fn func()) {
	g.closeMu.Lock()
	g.closers = append(g.closers, fn)
	g.closeMu.Unlock()
}

// Close releases everything opened so far, newest first.
func (g *Globals) Close() {
	g.closeMu.Lock()
	closers := g.closers
	g.closers = nil
	g.closeMu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// boot loads configuration and routes telemetry into the log file so it
// never lands on the terminal a session draws on.
func (g *Globals) boot(ctx context.Context) error {
	g.bootOnce.Do(func() {
		cfg, err := config.Load(g.envFile)
		if err != nil {
			g.bootErr = err
			return
		}
		g.cfg = cfg

		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			g.bootErr = fmt.Errorf("open log file: %w", err)
			return
		}
		shutdown, err := logging.SetupOTelSDK(ctx, logFile)
		if err != nil {
			logFile.Close()
			g.bootErr = fmt.Errorf("setup telemetry: %w", err)
			return
		}
		g.addCloser(func() {
			shutdown(context.Background())
			logFile.Close()
		})
		logging.InitializeDefaultCounters()
	})
	return g.bootErr
}

// Store opens the database, brings the schema up to date and resolves the
// operator's user record.
func (g *Globals) Store(ctx context.Context) (*repository.Repository, model.User, error) {
	if err := g.boot(ctx); err != nil {
		return nil, model.User{}, err
	}
	g.storeOnce.Do(func() {
		db, err := repository.Open(ctx, g.cfg.Database.DSN())
		if err != nil {
			g.storeErr = err
			return
		}
		repo := repository.New(db, g.cfg.Username)
		g.addCloser(func() { repo.Close() })

		if err := repo.Init(ctx, g.cfg.SchemaPath, g.cfg.MigrationsDir); err != nil {
			g.storeErr = err
			return
		}
		user, err := repo.CurrentUser(ctx)
		if err != nil {
			g.storeErr = err
			return
		}
		g.repo, g.user = repo, user
	})
	return g.repo, g.user, g.storeErr
}

// Engine connects to the container engine and makes sure the trainer
// network exists.
func (g *Globals) Engine(ctx context.Context) (*containerization.Controller, error) {
	if err := g.boot(ctx); err != nil {
		return nil, err
	}
	g.engineOnce.Do(func() {
		cli, err := containerization.NewEngine()
		if err != nil {
			g.engineErr = err
			return
		}
		g.addCloser(func() { cli.Close() })

		ctrl := containerization.New(cli, g.cfg.Username, g.cfg.TasksRoot, g.cfg.Network)
		if _, err := ctrl.EnsureNetwork(ctx); err != nil {
			g.engineErr = err
			return
		}
		g.ctrl = ctrl
	})
	return g.ctrl, g.engineErr
}

type CLI struct {
	EnvFile string `name:"env-file" default:".env" help:"Environment file read before the process environment."`

	Tasks    TasksCmd    `cmd:"" group:"train"   help:"List tasks with your progress, or show one task."`
	Run      RunCmd      `cmd:"" group:"train"   help:"Open an interactive session for a task."`
	Restart  RestartCmd  `cmd:"" group:"train"   help:"Throw away a task container and start over."`
	Attempts AttemptsCmd `cmd:"" group:"train"   help:"Show graded attempts for a task."`
	Build    BuildCmd    `cmd:"" group:"catalog" help:"Build task images from their archives."`
	Migrate  MigrateCmd  `cmd:"" group:"catalog" help:"Apply the schema and pending migrations."`
	Watch    WatchCmd    `cmd:"" group:"catalog" help:"Backfill task statuses whenever the catalog changes."`
	Users    UsersCmd    `cmd:"" group:"admin"   help:"Manage trainer users (list/rename/delete)."`
	Cleanup  CleanupCmd  `cmd:"" group:"admin"   help:"Remove trainer containers and optionally their attempts."`
}

func newParser(ctx context.Context, cli *CLI, globals *Globals, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("git-trainer"),
		kong.Description("git-trainer: practice git in disposable containers\n\nUSAGE:  git-trainer <command> [arguments]"),
		kong.UsageOnError(),
		kong.Bind(globals),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.ExplicitGroups([]kong.Group{
			{Key: "train", Title: "── TRAINING ──────────────────────────────────────────────────────────"},
			{Key: "catalog", Title: "── CATALOG ───────────────────────────────────────────────────────────"},
			{Key: "admin", Title: "── ADMINISTRATION ────────────────────────────────────────────────────"},
		}),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cli CLI
	globals := &Globals{out: os.Stdout, tty: os.Stdout}

	parser, err := newParser(ctx, &cli, globals)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	globals.envFile = cli.EnvFile

	err = kctx.Run()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		logging.Log("Command failed: "+err.Error(), slog.LevelError)
	}
	globals.Close()
	kctx.FatalIfErrorf(err)
}
