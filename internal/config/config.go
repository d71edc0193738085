/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config loads podfit's runtime configuration from the
// environment, applying the same "default plus override" shape the
// teacher uses for its --cluster-name/--metrics-port flags in
// cmd/controller/main.go, but sourced from env vars since podfit has
// no Kubernetes flag-binding machinery to piggyback on.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// BackingMode selects how the Node Registry acquires a backing
// resource for a node. It is a first-class, explicit mode rather than
// a silent fallback (spec.md §9).
type BackingMode string

const (
	BackingSimulated BackingMode = "simulated"
	BackingDocker    BackingMode = "docker"
)

// Config holds every tunable named in spec.md §6's configuration table,
// plus the HTTP/metrics bind addresses and backing-resource mode.
type Config struct {
	HeartbeatTimeout       time.Duration `validate:"required,gt=0"`
	HeartbeatProbeInterval time.Duration `validate:"required,gt=0"`
	HeartbeatEmitInterval  time.Duration `validate:"required,gt=0"`
	RepairInterval         time.Duration `validate:"required,gt=0"`
	DefaultNodeCPU         int           `validate:"required,gt=0"`
	DefaultPodCPU          int           `validate:"required,gt=0"`

	HTTPAddr       string      `validate:"required"`
	MetricsAddr    string      `validate:"required"`
	BackingMode    BackingMode `validate:"required,oneof=simulated docker"`
	DockerImage    string      `validate:"required_if=BackingMode docker"`
	RepairParallel int         `validate:"required,gt=0"`
}

// Default returns the configuration spec.md §6 describes as "all have
// defaults."
func Default() Config {
	return Config{
		HeartbeatTimeout:       10 * time.Second,
		HeartbeatProbeInterval: 5 * time.Second,
		HeartbeatEmitInterval:  5 * time.Second,
		RepairInterval:         5 * time.Second,
		DefaultNodeCPU:         100,
		DefaultPodCPU:          10,
		HTTPAddr:               ":8080",
		MetricsAddr:            ":9090",
		BackingMode:            BackingSimulated,
		DockerImage:            "registry.k8s.io/pause:3.9",
		RepairParallel:         8,
	}
}

// Load reads Config from the environment, falling back to Default for
// anything unset, then validates the result. A validation failure
// panics at startup (spec.md §7.5 "programmer/config errors fail
// fast"), matching the teacher's settings.NewSettingsFromConfigMap.
func Load() Config {
	c := Default()

	c.HeartbeatTimeout = durationEnv("PODFIT_HEARTBEAT_TIMEOUT_SECONDS", c.HeartbeatTimeout)
	c.HeartbeatProbeInterval = durationEnv("PODFIT_HEARTBEAT_PROBE_INTERVAL_SECONDS", c.HeartbeatProbeInterval)
	c.HeartbeatEmitInterval = durationEnv("PODFIT_HEARTBEAT_EMIT_INTERVAL_SECONDS", c.HeartbeatEmitInterval)
	c.RepairInterval = durationEnv("PODFIT_REPAIR_INTERVAL_SECONDS", c.RepairInterval)
	c.DefaultNodeCPU = intEnv("PODFIT_DEFAULT_NODE_CPU", c.DefaultNodeCPU)
	c.DefaultPodCPU = intEnv("PODFIT_DEFAULT_POD_CPU", c.DefaultPodCPU)
	c.HTTPAddr = stringEnv("PODFIT_HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = stringEnv("PODFIT_METRICS_ADDR", c.MetricsAddr)
	c.BackingMode = BackingMode(stringEnv("PODFIT_BACKING_MODE", string(c.BackingMode)))
	c.DockerImage = stringEnv("PODFIT_DOCKER_IMAGE", c.DockerImage)
	c.RepairParallel = intEnv("PODFIT_REPAIR_PARALLEL", c.RepairParallel)

	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("podfit: invalid configuration: %v", err))
	}
	return c
}

// Validate checks the struct tags above with go-playground/validator,
// the same library the teacher uses to validate its Settings type.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(secs) * time.Second
}
