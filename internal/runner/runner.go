// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runner executes pipeline steps as isolated, resource-limited
// Docker containers, bounded by a fixed-size worker pool.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// stepTimeout bounds how long a single step's container may run before
	// it is stopped and treated as a failure.
	stepTimeout = 1 * time.Hour

	// stopGrace is how long ContainerStop waits for a graceful exit after a
	// step timeout before the container is killed outright.
	stopGrace = 10 * time.Second
)

// Runner executes shell commands inside short-lived Docker containers.
type Runner struct {
	client *client.Client
	memory int64 // bytes
	quota  int64 // microseconds per cpuQuotaPeriod
	slots  chan struct{}
}

// Config configures a Runner's resource limits and concurrency.
type Config struct {
	SocketPath              string
	MemoryLimit             string
	CPULimit                string
	MaxConcurrentContainers int
}

// New creates a Runner backed by the Docker Engine API at cfg.SocketPath.
func New(cfg Config) (*Runner, error) {
	memory, err := parseMemoryLimit(cfg.MemoryLimit)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	quota, err := parseCPUQuota(cfg.CPULimit)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.SocketPath != "" {
		opts = append(opts, client.WithHost("unix://"+cfg.SocketPath))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("runner: creating docker client: %w", err)
	}

	slotCount := cfg.MaxConcurrentContainers
	if slotCount <= 0 {
		slotCount = 5
	}

	return &Runner{
		client: cli,
		memory: memory,
		quota:  quota,
		slots:  make(chan struct{}, slotCount),
	}, nil
}

// Run executes command inside a fresh container built from image, with the
// given environment. It returns the container's exit code, combined
// stdout+stderr output, and an error only for infrastructure failures (an
// unsuccessful command is reported via a non-zero exit code, not an error).
func (r *Runner) Run(ctx context.Context, imageRef, command string, env map[string]string, stepName string) (int, string, error) {
	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return 0, "", ctx.Err()
	}
	defer func() { <-r.slots }()

	reader, err := r.client.ImagePull(ctx, imageRef, image.PullOptions{})
	if err != nil {
		return 1, fmt.Sprintf("image unavailable: %v", err), nil
	}
	_, _ = io.Copy(io.Discard, reader)
	_ = reader.Close()

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	created, err := r.client.ContainerCreate(
		ctx,
		&container.Config{
			Image: imageRef,
			Cmd:   []string{"sh", "-c", command},
			Env:   envList,
			Labels: map[string]string{
				"cicdbot.step": stepName,
			},
		},
		&container.HostConfig{
			Privileged: false,
			Resources: container.Resources{
				Memory:    r.memory,
				CPUQuota:  r.quota,
				CPUPeriod: cpuQuotaPeriod,
			},
		},
		nil, nil, "",
	)
	if err != nil {
		return 0, "", fmt.Errorf("runner: creating container for step %q: %w", stepName, err)
	}

	defer func() {
		_ = r.client.ContainerRemove(context.Background(), created.ID, container.RemoveOptions{Force: true})
	}()

	if err := r.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return 0, "", fmt.Errorf("runner: starting container for step %q: %w", stepName, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	statusCh, errCh := r.client.ContainerWait(waitCtx, created.ID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case err := <-errCh:
		if waitCtx.Err() != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), stopGrace)
			defer stopCancel()
			timeoutSeconds := int(stopGrace.Seconds())
			_ = r.client.ContainerStop(stopCtx, created.ID, container.StopOptions{Timeout: &timeoutSeconds})
			return 1, fmt.Sprintf("execution error: step %q exceeded %s", stepName, stepTimeout), nil
		}
		if err != nil {
			return 0, "", fmt.Errorf("runner: waiting on container for step %q: %w", stepName, err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	output, err := r.collectLogs(ctx, created.ID)
	if err != nil {
		return 0, "", fmt.Errorf("runner: collecting logs for step %q: %w", stepName, err)
	}

	return int(exitCode), output, nil
}

// collectLogs drains combined stdout+stderr from the container and passes
// it through a UTF-8 validating transform so malformed container output
// never corrupts a log line's grammar downstream.
func (r *Runner) collectLogs(ctx context.Context, containerID string) (string, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("fetching container logs: %w", err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logs); err != nil {
		return "", fmt.Errorf("demultiplexing container logs: %w", err)
	}

	sanitized, _, err := transform.String(unicode.UTF8.NewDecoder(), buf.String())
	if err != nil {
		return buf.String(), nil
	}

	return sanitized, nil
}
