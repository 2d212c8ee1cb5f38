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
	"fmt"
	"strconv"
	"strings"
)

// cpuQuotaPeriod is the Docker Engine's fixed CPU accounting period in
// microseconds; quota is period * the configured CPU fraction.
const cpuQuotaPeriod = 100000

// parseMemoryLimit converts a Docker-style memory limit string (e.g. "512m",
// "1g", "2048k") into bytes. Base-1024, case-insensitive suffix. A bare
// number is treated as bytes.
func parseMemoryLimit(limit string) (int64, error) {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		return 0, fmt.Errorf("empty memory limit")
	}

	suffix := limit[len(limit)-1]
	var multiplier int64 = 1
	numeric := limit

	switch suffix {
	case 'k', 'K':
		multiplier = 1024
		numeric = limit[:len(limit)-1]
	case 'm', 'M':
		multiplier = 1024 * 1024
		numeric = limit[:len(limit)-1]
	case 'g', 'G':
		multiplier = 1024 * 1024 * 1024
		numeric = limit[:len(limit)-1]
	}

	value, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory limit %q: %w", limit, err)
	}

	return value * multiplier, nil
}

// parseCPUQuota converts a fractional CPU-limit string (e.g. "0.5", "2") into
// a Docker CPUQuota value paired with the fixed cpuQuotaPeriod.
func parseCPUQuota(limit string) (int64, error) {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		return 0, fmt.Errorf("empty cpu limit")
	}

	fraction, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cpu limit %q: %w", limit, err)
	}

	return int64(fraction * float64(cpuQuotaPeriod)), nil
}
