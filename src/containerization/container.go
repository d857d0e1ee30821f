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
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"

	"gittrainer/src/logging"
	"gittrainer/src/model"
)

// EnsureContainer returns the ID of the task container, creating it from the
// task image when it does not exist yet. Calling it twice creates at most one.
func (c *Controller) EnsureContainer(ctx context.Context, task model.Task) (string, error) {
	name := task.ContainerName(c.username)

	info, err := c.engine.ContainerInspect(ctx, name)
	if err == nil {
		return info.ID, nil
	}
	if !IsNotFound(err) {
		return "", engineFailure(ctx, "inspect container", name, err)
	}

	networkID, err := c.EnsureNetwork(ctx)
	if err != nil {
		return "", err
	}
	var netConfig *network.NetworkingConfig
	if c.network != "" {
		netConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				c.network: {NetworkID: networkID},
			},
		}
	}

	resp, err := c.engine.ContainerCreate(ctx, &container.Config{
		Image:        task.ImageName(),
		Hostname:     task.WorkName,
		Tty:          true,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			labelUser: c.username,
			labelTask: task.WorkName,
		},
	}, &container.HostConfig{}, netConfig, nil, name)
	if err != nil {
		return "", engineFailure(ctx, "create container", name, err)
	}

	logging.Log(fmt.Sprintf("Created container %s for task %s", name, task.WorkName), slog.LevelInfo)
	return resp.ID, nil
}

func (c *Controller) StartContainer(ctx context.Context, task model.Task) error {
	name := task.ContainerName(c.username)
	if err := c.engine.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return engineFailure(ctx, "start container", name, err)
	}
	return nil
}

// EnsureRunning makes sure the task container exists and is started.
func (c *Controller) EnsureRunning(ctx context.Context, task model.Task) (string, error) {
	id, err := c.EnsureContainer(ctx, task)
	if err != nil {
		return "", err
	}

	info, err := c.engine.ContainerInspect(ctx, id)
	if err != nil {
		return "", engineFailure(ctx, "inspect container", id, err)
	}
	if isRunning(info) {
		return id, nil
	}
	if err := c.engine.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return "", engineFailure(ctx, "start container", id, err)
	}
	return id, nil
}

// DeleteContainer force-removes the task container. A missing container is
// not an error.
func (c *Controller) DeleteContainer(ctx context.Context, task model.Task) error {
	name := task.ContainerName(c.username)
	err := c.engine.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil && !IsNotFound(err) {
		return engineFailure(ctx, "remove container", name, err)
	}
	return nil
}

// RestartContainer throws the container away and creates a fresh one.
func (c *Controller) RestartContainer(ctx context.Context, task model.Task) (string, error) {
	if err := c.DeleteContainer(ctx, task); err != nil {
		return "", err
	}
	return c.EnsureContainer(ctx, task)
}

// ResizeTTY sets the container terminal size; non-positive sizes become 1.
func (c *Controller) ResizeTTY(ctx context.Context, task model.Task, rows, cols int) error {
	name := task.ContainerName(c.username)
	err := c.engine.ContainerResize(ctx, name, container.ResizeOptions{
		Height: uint(max(rows, 1)),
		Width:  uint(max(cols, 1)),
	})
	if err != nil {
		return engineFailure(ctx, "resize container", name, err)
	}
	return nil
}

// Attachment is a live stream to the container's primary process. Output is
// raw when the container has a TTY, otherwise stdcopy-multiplexed.
type Attachment struct {
	Output      io.Reader
	Input       io.Writer
	Multiplexed bool

	closer func()
}

func NewAttachment(output io.Reader, input io.Writer, multiplexed bool, closer func()) *Attachment {
	return &Attachment{Output: output, Input: input, Multiplexed: multiplexed, closer: closer}
}

func (a *Attachment) Close() {
	if a.closer != nil {
		a.closer()
	}
}

func (c *Controller) Attach(ctx context.Context, task model.Task) (*Attachment, error) {
	name := task.ContainerName(c.username)

	info, err := c.engine.ContainerInspect(ctx, name)
	if err != nil {
		return nil, engineFailure(ctx, "inspect container", name, err)
	}

	resp, err := c.engine.ContainerAttach(ctx, name, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, engineFailure(ctx, "attach container", name, err)
	}

	tty := info.Config != nil && info.Config.Tty
	return NewAttachment(resp.Reader, resp.Conn, !tty, resp.Close), nil
}

// Cleanup removes every trainer container matching the user and/or task
// labels. Empty values match everything.
func (c *Controller) Cleanup(ctx context.Context, username, workName string) (int, error) {
	args := filters.NewArgs()
	if username != "" {
		args.Add("label", labelUser+"="+username)
	} else {
		args.Add("label", labelUser)
	}
	if workName != "" {
		args.Add("label", labelTask+"="+workName)
	}

	list, err := c.engine.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return 0, engineFailure(ctx, "list containers", "", err)
	}

	removed := 0
	for _, item := range list {
		err := c.engine.ContainerRemove(ctx, item.ID, container.RemoveOptions{Force: true})
		if err != nil && !IsNotFound(err) {
			return removed, engineFailure(ctx, "remove container", item.ID, err)
		}
		removed++
	}
	return removed, nil
}

func isRunning(info container.InspectResponse) bool {
	return info.ContainerJSONBase != nil && info.State != nil && info.State.Running
}
