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

// Package containerization drives the per-user task containers through the
// Docker engine API: image builds, lifecycle, TTY attach, exec and copy.
package containerization

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.opentelemetry.io/otel/attribute"

	"gittrainer/src/logging"
)

// Engine is the subset of the Docker client the trainer uses.
type Engine interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerResize(ctx context.Context, containerID string, options container.ResizeOptions) error
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecStartOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options container.CopyToContainerOptions) error
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
}

var _ Engine = (*client.Client)(nil)

// NewEngine connects to the local daemon using the DOCKER_* environment.
func NewEngine() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &EngineError{Op: "connect", Err: err}
	}
	return cli, nil
}

// EngineError wraps a failed engine call with the operation and target.
type EngineError struct {
	Op     string
	Target string
	Err    error
}

func (e *EngineError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("engine %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("engine %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the engine said the object does not exist.
func IsNotFound(err error) bool {
	return cerrdefs.IsNotFound(err)
}

func engineFailure(ctx context.Context, op, target string, err error) error {
	logging.Increment(ctx, logging.EngineFailures, attribute.String("op", op))
	logging.Log(fmt.Sprintf("failed to %s %s: %v", op, target, err), slog.LevelError)
	return &EngineError{Op: op, Target: target, Err: err}
}

const (
	labelUser = "git-trainer.user"
	labelTask = "git-trainer.task"
)

// Controller manages the containers of one user.
type Controller struct {
	engine    Engine
	username  string
	tasksRoot string
	network   string
}

func New(engine Engine, username, tasksRoot, networkName string) *Controller {
	return &Controller{
		engine:    engine,
		username:  username,
		tasksRoot: tasksRoot,
		network:   networkName,
	}
}

func (c *Controller) Username() string {
	return c.username
}
