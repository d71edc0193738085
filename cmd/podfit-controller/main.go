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

// Command podfit-controller runs the cluster orchestrator process:
// Node Registry, Liveness Detector, Placement Engine, Heartbeat
// Supervisor, Repair Controller, and the HTTP Control-Plane Facade,
// all wired together once at startup. Grounded on the teacher's
// cmd/controller/main.go shape: load config, construct collaborators,
// start background loops, serve HTTP, wait for signal, shut down.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/utils/clock"

	"github.com/podfit/podfit/internal/config"
	"github.com/podfit/podfit/internal/httpapi"
	"github.com/podfit/podfit/internal/logging"
	"github.com/podfit/podfit/internal/metrics"
	"github.com/podfit/podfit/pkg/backing"
	"github.com/podfit/podfit/pkg/facade"
	"github.com/podfit/podfit/pkg/heartbeat"
	"github.com/podfit/podfit/pkg/liveness"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/repair"
	"github.com/podfit/podfit/pkg/registry"
)

func main() {
	cfg := config.Load()

	devMode := os.Getenv("PODFIT_DEV") != ""
	log, err := logging.New(devMode)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, log)

	provider, err := newProvider(cfg)
	if err != nil {
		log.Error(err, "failed to construct backing provider")
		os.Exit(1)
	}

	clk := clock.RealClock{}

	reg := registry.New(provider)
	plc := placement.New()
	liv := liveness.New(clk, cfg.HeartbeatTimeout)
	hb := heartbeat.New(clk, cfg.HeartbeatEmitInterval, liv)
	rc := repair.New(liv, plc, reg, hb, clk, cfg.RepairInterval, cfg.RepairParallel)

	f := facade.New(reg, plc, liv, hb, rc, clk)
	observed := metrics.NewObservingFacade(f)

	go rc.Run(ctx)

	server := httpapi.New(observed, httpapi.Defaults{NodeCPU: cfg.DefaultNodeCPU, PodCPU: cfg.DefaultPodCPU})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: server}

	go func() {
		log.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr, "backing_mode", cfg.BackingMode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	hb.Wait()
}

func newProvider(cfg config.Config) (backing.Provider, error) {
	switch cfg.BackingMode {
	case config.BackingDocker:
		return backing.NewDockerProvider(cfg.DockerImage)
	default:
		return backing.NewSimulated(), nil
	}
}
