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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeContainer struct {
	id      string
	name    string
	config  container.Config
	running bool
}

type fakeEngine struct {
	mu sync.Mutex

	containers map[string]*fakeContainer
	networks   []network.Summary
	nextID     int

	creates      int
	lastCreate   *container.Config
	lastNetwork  *network.NetworkingConfig
	netCreates   int
	resizes      []container.ResizeOptions
	removeErr    error
	listOptions  container.ListOptions
	execCmds     [][]string
	execRun      func(cmd []string) (stdout, stderr string, exitCode int)
	execExit     map[string]int
	copyDst      string
	copiedFiles  map[string]string
	buildBody    string
	buildOptions build.ImageBuildOptions
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: map[string]*fakeContainer{},
		execExit:   map[string]int{},
	}
}

func notFound(what string) error {
	return fmt.Errorf("No such container: %s: %w", what, cerrdefs.ErrNotFound)
}

func (f *fakeEngine) lookup(ref string) *fakeContainer {
	if c, ok := f.containers[ref]; ok {
		return c
	}
	for _, c := range f.containers {
		if c.id == ref {
			return c
		}
	}
	return nil
}

func (f *fakeEngine) ContainerInspect(_ context.Context, ref string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(ref)
	if c == nil {
		return container.InspectResponse{}, notFound(ref)
	}
	cfg := c.config
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    c.id,
			Name:  "/" + c.name,
			State: &container.State{Running: c.running},
		},
		Config: &cfg,
	}, nil
}

func (f *fakeEngine) ContainerCreate(_ context.Context, cfg *container.Config, _ *container.HostConfig, netCfg *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.containers[name]; exists {
		return container.CreateResponse{}, fmt.Errorf("conflict: %s: %w", name, cerrdefs.ErrConflict)
	}
	f.nextID++
	f.creates++
	f.lastCreate = cfg
	f.lastNetwork = netCfg
	c := &fakeContainer{id: fmt.Sprintf("id-%d", f.nextID), name: name, config: *cfg}
	f.containers[name] = c
	return container.CreateResponse{ID: c.id}, nil
}

func (f *fakeEngine) ContainerStart(_ context.Context, ref string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.lookup(ref)
	if c == nil {
		return notFound(ref)
	}
	c.running = true
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, ref string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	c := f.lookup(ref)
	if c == nil {
		return notFound(ref)
	}
	delete(f.containers, c.name)
	return nil
}

func (f *fakeEngine) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listOptions = options
	var out []container.Summary
	for _, c := range f.containers {
		out = append(out, container.Summary{ID: c.id, Names: []string{"/" + c.name}, Labels: c.config.Labels})
	}
	return out, nil
}

func (f *fakeEngine) ContainerResize(_ context.Context, ref string, options container.ResizeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, options)
	return nil
}

func (f *fakeEngine) ContainerAttach(_ context.Context, ref string, _ container.AttachOptions) (types.HijackedResponse, error) {
	local, _ := net.Pipe()
	return types.HijackedResponse{Conn: local, Reader: bufio.NewReader(strings.NewReader("hello\r\n"))}, nil
}

func (f *fakeEngine) ContainerExecCreate(_ context.Context, ref string, options container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookup(ref) == nil {
		return container.ExecCreateResponse{}, notFound(ref)
	}
	f.execCmds = append(f.execCmds, options.Cmd)
	return container.ExecCreateResponse{ID: fmt.Sprintf("exec-%d", len(f.execCmds))}, nil
}

func (f *fakeEngine) ContainerExecAttach(_ context.Context, execID string, _ container.ExecStartOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	cmd := f.execCmds[len(f.execCmds)-1]
	run := f.execRun
	f.mu.Unlock()

	stdout, stderr, code := "", "", 0
	if run != nil {
		stdout, stderr, code = run(cmd)
	}
	f.mu.Lock()
	f.execExit[execID] = code
	f.mu.Unlock()

	var framed bytes.Buffer
	if stdout != "" {
		stdcopy.NewStdWriter(&framed, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		stdcopy.NewStdWriter(&framed, stdcopy.Stderr).Write([]byte(stderr))
	}
	local, _ := net.Pipe()
	return types.HijackedResponse{Conn: local, Reader: bufio.NewReader(&framed)}, nil
}

func (f *fakeEngine) ContainerExecInspect(_ context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return container.ExecInspect{ExecID: execID, ExitCode: f.execExit[execID]}, nil
}

func (f *fakeEngine) CopyToContainer(_ context.Context, ref, dst string, content io.Reader, _ container.CopyToContainerOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyDst = dst
	f.copiedFiles = map[string]string{}
	tr := tar.NewReader(content)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		if header.Typeflag == tar.TypeReg {
			f.copiedFiles[header.Name] = string(data)
		}
	}
}

func (f *fakeEngine) ImageBuild(_ context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	io.Copy(io.Discard, buildContext)
	f.buildOptions = options
	return build.ImageBuildResponse{Body: io.NopCloser(strings.NewReader(f.buildBody))}, nil
}

func (f *fakeEngine) NetworkList(_ context.Context, _ network.ListOptions) ([]network.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.networks, nil
}

func (f *fakeEngine) NetworkCreate(_ context.Context, name string, _ network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.netCreates++
	id := "net-" + name
	f.networks = append(f.networks, network.Summary{Name: name, ID: id})
	return network.CreateResponse{ID: id}, nil
}
