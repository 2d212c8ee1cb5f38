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

package runner

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestNew_InvalidMemoryLimitFails(t *testing.T) {
	_, err := New(Config{MemoryLimit: "bogus", CPULimit: "0.5"})
	if err == nil {
		t.Fatal("expected error for invalid memory limit")
	}
}

func TestNew_InvalidCPULimitFails(t *testing.T) {
	_, err := New(Config{MemoryLimit: "512m", CPULimit: "bogus"})
	if err == nil {
		t.Fatal("expected error for invalid cpu limit")
	}
}

func TestNew_DefaultConcurrencySlots(t *testing.T) {
	r, err := New(Config{MemoryLimit: "512m", CPULimit: "0.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cap(r.slots) != 5 {
		t.Errorf("expected default slot count 5, got %d", cap(r.slots))
	}
}

// dockerSocketAvailable skips tests that need a live Docker Engine when
// none is reachable in the current environment.
func dockerSocketAvailable(t *testing.T, socketPath string) {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 200*time.Millisecond)
	if err != nil {
		t.Skipf("docker socket unavailable at %s: %v", socketPath, err)
	}
	conn.Close()
}

func TestRun_ExecutesCommandAgainstRealDocker(t *testing.T) {
	const socketPath = "/var/run/docker.sock"
	dockerSocketAvailable(t, socketPath)

	r, err := New(Config{SocketPath: socketPath, MemoryLimit: "64m", CPULimit: "0.5", MaxConcurrentContainers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exitCode, output, err := r.Run(ctx, "busybox", "echo hello-cicdbot", nil, "greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exitCode != 0 {
		t.Errorf("expected exit code 0, got %d (output: %s)", exitCode, output)
	}
	if !strings.Contains(output, "hello-cicdbot") {
		t.Errorf("expected output to contain greeting, got %q", output)
	}
}
