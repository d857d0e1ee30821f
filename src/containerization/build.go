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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/jsonmessage"

	"gittrainer/src/logging"
	"gittrainer/src/model"
)

const (
	buildArchive    = "src.tar.gz"
	buildDockerfile = "src/Dockerfile"
)

// BuildImage builds the task image from <tasksRoot>/<work>/src.tar.gz and
// hands every log line to relay as it arrives. Failed build steps are logged
// and relayed but do not end the stream; they surface when the container
// is started. The returned count is the number of failed chunks.
func (c *Controller) BuildImage(ctx context.Context, task model.Task, relay func(line string)) (int, error) {
	ctx, span := logging.StartSpan(ctx, "containerization.build")
	defer span.End()

	archivePath := filepath.Join(c.tasksRoot, task.WorkName, buildArchive)
	archive, err := os.Open(archivePath)
	if err != nil {
		return 0, fmt.Errorf("open build context: %w", err)
	}
	defer archive.Close()

	resp, err := c.engine.ImageBuild(ctx, archive, build.ImageBuildOptions{
		Tags:        []string{task.ImageName()},
		Dockerfile:  buildDockerfile,
		Remove:      true,
		ForceRemove: true,
		Labels:      map[string]string{labelTask: task.WorkName},
	})
	if err != nil {
		return 0, engineFailure(ctx, "build image", task.ImageName(), err)
	}
	defer resp.Body.Close()

	failures := 0
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return failures, engineFailure(ctx, "read build output", task.ImageName(), err)
		}

		if msg.Error != nil {
			logging.Log(fmt.Sprintf("Build chunk for %s failed: %s", task.ImageName(), msg.Error.Message), slog.LevelError)
			failures++
			relayLines(relay, msg.Error.Message)
			continue
		}
		relayLines(relay, msg.Stream)
		if msg.Status != "" {
			relayLines(relay, msg.Status)
		}
	}

	logging.UpdateSpanValue(ctx, "failed_chunks", int64(failures))
	logging.Log(fmt.Sprintf("Build of %s finished with %d failed chunks", task.ImageName(), failures), slog.LevelInfo)
	return failures, nil
}

func relayLines(relay func(string), chunk string) {
	if relay == nil {
		return
	}
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		relay(line)
	}
}
