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
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRAINER_USER", "Ann Lee")
	t.Setenv("TRAINER_POLL_INTERVAL", "")
	t.Setenv("DB_PORT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "Ann-Lee", cfg.Username)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Contains(t, cfg.Database.DSN(), "sslmode=disable")
}

func TestLoadFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TRAINER_TASKS_ROOT=/srv/tasks\nTRAINER_POLL_INTERVAL=1s\n"), 0o644))
	t.Setenv("TRAINER_USER", "bob")
	t.Cleanup(func() {
		os.Unsetenv("TRAINER_TASKS_ROOT")
		os.Unsetenv("TRAINER_POLL_INTERVAL")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "/srv/tasks", cfg.TasksRoot)
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoadRejectsBadPort(t *testing.T) {
	t.Setenv("TRAINER_USER", "bob")
	t.Setenv("DB_PORT", "not-a-port")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
}

func TestLoadRejectsBadPollInterval(t *testing.T) {
	t.Setenv("TRAINER_USER", "bob")
	t.Setenv("DB_PORT", "")
	t.Setenv("TRAINER_POLL_INTERVAL", "fast")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.ErrorContains(t, err, "TRAINER_POLL_INTERVAL")
}

func TestDSNEscapesCredentials(t *testing.T) {
	db := Database{User: "trainer", Password: "p@ss word'=x", Name: "gittrainer", Host: "db.local", Port: "5433", SSLMode: "require"}

	u, err := url.Parse(db.DSN())
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "trainer", u.User.Username())
	password, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss word'=x", password)
	assert.Equal(t, "db.local:5433", u.Host)
	assert.Equal(t, "/gittrainer", u.Path)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}
