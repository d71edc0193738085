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

// Package repair implements the Repair Controller (spec.md §4.5): a
// periodic reconciliation loop that detaches pods from unhealthy nodes
// and reschedules them. Cycle shape (tick, snapshot failing nodes, act,
// report) is grounded on the original implementation's
// server.py cluster_repair_thread and scheduler.py
// check_and_repair_cluster/process_pod_rescheduling; the Go port fans
// per-node eviction out concurrently with golang.org/x/sync/errgroup,
// bounding it with SetLimit, where the original processed nodes one at
// a time in a single thread.
package repair

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/podfit/podfit/internal/logging"
	"github.com/podfit/podfit/pkg/liveness"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/registry"
)

// LivenessSource is the subset of the Liveness Detector a Controller
// needs.
type LivenessSource interface {
	Snapshot() map[string]liveness.Status
	Forget(nodeID string)
}

// RegistrySource is the subset of the Node Registry a Controller needs.
type RegistrySource interface {
	Deregister(ctx context.Context, nodeID string) error
}

// HeartbeatStopper lets the Repair Controller stop emitting synthetic
// heartbeats for a node it has just evicted, so the node doesn't
// immediately flip back to Healthy on the next Snapshot.
type HeartbeatStopper interface {
	Stop(nodeID string)
}

// RescheduleEntry is one pod's outcome in the rescheduled-pods report
// (spec.md §4.5 step 6, §6 GET /get_rescheduled_pods): the node it was
// evicted from, the node it landed on (empty if still unplaced), and a
// status of "rescheduled" or "failed".
type RescheduleEntry struct {
	OldNode string
	NewNode string
	Status  string
}

// Controller runs repair cycles, either on demand (Step) or on a
// ticker (Run).
type Controller struct {
	liveness   LivenessSource
	placement  *placement.Engine
	registry   RegistrySource
	heartbeats HeartbeatStopper
	clock      clock.Clock
	interval   time.Duration
	parallel   int

	mu sync.Mutex
	// trackedOldNode remembers, for every pod evicted by EvictNode since
	// its last successful reschedule, which node it came from. Entries
	// are retried on every Step until the pod lands somewhere, then
	// dropped (spec.md §4.5: "retried on every subsequent cycle").
	trackedOldNode map[string]string
	lastReport     map[string]RescheduleEntry
}

// New constructs a Controller. parallel bounds how many nodes are
// detached concurrently within a single Step (spec.md §4.5 requires
// repair to make progress even with many simultaneous failures without
// serializing unboundedly).
func New(
	liveness LivenessSource,
	placement *placement.Engine,
	registry RegistrySource,
	heartbeats HeartbeatStopper,
	clk clock.Clock,
	interval time.Duration,
	parallel int,
) *Controller {
	if parallel < 1 {
		parallel = 1
	}
	return &Controller{
		liveness:       liveness,
		placement:      placement,
		registry:       registry,
		heartbeats:     heartbeats,
		clock:          clk,
		interval:       interval,
		parallel:       parallel,
		trackedOldNode: make(map[string]string),
		lastReport:     make(map[string]RescheduleEntry),
	}
}

// EvictNode detaches every pod assigned to nodeID from the Placement
// Engine and immediately attempts to reschedule each one elsewhere
// (spec.md §4.5 steps 3-4). It is exported so the Facade can drive the
// same detach-and-reschedule path synchronously from RemoveNode
// (spec.md §4.6), not just from a ticked Step.
func (c *Controller) EvictNode(nodeID string) []placement.UnregisterResult {
	evicted := c.placement.UnregisterNode(nodeID)
	if len(evicted) == 0 {
		return evicted
	}

	c.mu.Lock()
	for _, ev := range evicted {
		c.trackedOldNode[ev.PodID] = nodeID
	}
	c.mu.Unlock()

	for _, ev := range evicted {
		c.placement.Schedule(ev.PodID, ev.CPURequest)
	}
	return evicted
}

// Step runs one synchronous repair cycle: find every Unhealthy node,
// evict and reschedule its pods, deregister the node, drain whatever
// is still pending, and finalize the rescheduled-pod report (spec.md
// §4.5, §6). Errors from individual nodes are aggregated, not
// short-circuited — one bad node must not block repair of the rest.
// DrainPending and the report are always produced, even when no node
// is currently failing, so a Facade-driven Step after a manual
// RemoveNode still surfaces that eviction's outcome.
func (c *Controller) Step(ctx context.Context) error {
	log := logging.FromContext(ctx)

	failing := c.failingNodes()
	var errs error

	if len(failing) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.parallel)

		var mu sync.Mutex
		for _, nodeID := range failing {
			nodeID := nodeID
			g.Go(func() error {
				evicted := c.EvictNode(nodeID)
				c.heartbeats.Stop(nodeID)
				c.liveness.Forget(nodeID)

				if err := c.registry.Deregister(gctx, nodeID); err != nil && err != registry.ErrNotFound {
					mu.Lock()
					errs = multierr.Append(errs, fmtWrapf(nodeID, err))
					mu.Unlock()
				}
				log.Info("repaired node", "node_id", nodeID, "evicted_pods", len(evicted))
				return nil
			})
		}
		_ = g.Wait()
	}

	c.placement.DrainPending()
	c.finalizeReport()
	c.placement.SweepStaleRequests()

	return errs
}

// finalizeReport resolves every tracked eviction against the
// Placement Engine's current pod_to_node view: pods that landed
// somewhere are reported "rescheduled" and untracked; pods still
// unplaced are reported "failed" but stay tracked for the next Step.
func (c *Controller) finalizeReport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for podID, oldNode := range c.trackedOldNode {
		if newNode, ok := c.placement.NodeOf(podID); ok {
			c.lastReport[podID] = RescheduleEntry{OldNode: oldNode, NewNode: newNode, Status: "rescheduled"}
			delete(c.trackedOldNode, podID)
			continue
		}
		c.lastReport[podID] = RescheduleEntry{OldNode: oldNode, Status: "failed"}
	}
}

func (c *Controller) failingNodes() []string {
	snapshot := c.liveness.Snapshot()
	failing := make([]string, 0, len(snapshot))
	for nodeID, status := range snapshot {
		if status == liveness.Unhealthy {
			failing = append(failing, nodeID)
		}
	}
	sort.Strings(failing)
	return failing
}

// GetRescheduledPods returns and clears the rescheduled-pods report
// accumulated since the last call (spec.md §6 GET /get_rescheduled_pods
// — read-and-clear so repeated polls don't double-report the same
// cycle). Entries for pods still "failed" are re-added on the next
// Step, so a caller that never polls never loses a pending failure.
func (c *Controller) GetRescheduledPods() map[string]RescheduleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.lastReport
	c.lastReport = make(map[string]RescheduleEntry)
	return out
}

// Run drives Step on clk's ticker until ctx is canceled. Intended to be
// launched as a single background goroutine from main.
func (c *Controller) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if err := c.Step(ctx); err != nil {
				log.Error(err, "repair cycle completed with errors")
			}
		}
	}
}

func fmtWrapf(nodeID string, err error) error {
	return &nodeError{nodeID: nodeID, err: err}
}

type nodeError struct {
	nodeID string
	err    error
}

func (e *nodeError) Error() string { return "node " + e.nodeID + ": " + e.err.Error() }
func (e *nodeError) Unwrap() error { return e.err }
