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

package containerization

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"gittrainer/src/model"
)

type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Exec runs cmd inside the task container and waits for it to finish.
// A non-zero exit code is reported in the result, not as an error.
func (c *Controller) Exec(ctx context.Context, task model.Task, cmd []string) (ExecResult, error) {
	name := task.ContainerName(c.username)

	created, err := c.engine.ContainerExecCreate(ctx, name, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return ExecResult{}, engineFailure(ctx, "create exec", name, err)
	}

	resp, err := c.engine.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, engineFailure(ctx, "attach exec", name, err)
	}
	defer resp.Close()

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ExecResult{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return ExecResult{}, engineFailure(ctx, "read exec output", name, err)
		}
	}

	inspect, err := c.engine.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, engineFailure(ctx, "inspect exec", name, err)
	}

	return ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// CopyDir copies the regular files of the host directory src into the
// container so that they end up under dst.
func (c *Controller) CopyDir(ctx context.Context, task model.Task, src, dst string) error {
	name := task.ContainerName(c.username)
	dst = path.Clean(dst)

	archive, err := tarDir(src, path.Base(dst))
	if err != nil {
		return fmt.Errorf("archive %s: %w", src, err)
	}
	if err := c.engine.CopyToContainer(ctx, name, path.Dir(dst), archive, container.CopyToContainerOptions{}); err != nil {
		return engineFailure(ctx, "copy to container", name, err)
	}
	return nil
}

func tarDir(src, prefix string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !d.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = path.Join(prefix, filepath.ToSlash(rel))
		if d.IsDir() {
			header.Name += "/"
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
