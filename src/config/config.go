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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"gittrainer/src/model"
)

type Database struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
	SSLMode  string
}

// DSN renders a postgres:// URL for lib/pq with every part escaped.
func (d Database) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(d.User),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

type Config struct {
	Username      string
	Database      Database
	SchemaPath    string
	MigrationsDir string
	TasksRoot     string
	LogFile       string
	Network       string
	PollInterval  time.Duration
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	username, err := resolveUsername()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Username: username,
		Database: Database{
			User:     getEnv("DB_USER", "trainer"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "gittrainer"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SchemaPath:    getEnv("TRAINER_SCHEMA_PATH", "db/schema.sql"),
		MigrationsDir: getEnv("TRAINER_MIGRATIONS_DIR", "db/migrations"),
		TasksRoot:     getEnv("TRAINER_TASKS_ROOT", "/etc/git-trainer/tasks"),
		LogFile:       getEnv("TRAINER_LOG_FILE", "git-trainer.log"),
		Network:       getEnv("TRAINER_NETWORK", "git-trainer"),
	}

	if cfg.PollInterval, err = getDuration("TRAINER_POLL_INTERVAL", 250*time.Millisecond); err != nil {
		return Config{}, err
	}

	if _, err := strconv.Atoi(cfg.Database.Port); err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT %q: %w", cfg.Database.Port, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}

	return cfg, nil
}

func resolveUsername() (string, error) {
	if name := getEnv("TRAINER_USER", ""); name != "" {
		return model.NormalizeUsername(name), nil
	}
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve OS user: %w", err)
	}
	return model.NormalizeUsername(current.Username), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := getEnv(key, "")
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
