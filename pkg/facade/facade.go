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

// Package facade implements the Control-Plane Facade (spec.md §4.6):
// the single entry point that sequences the Node Registry, Placement
// Engine, Liveness Detector, Heartbeat Supervisor, and Repair
// Controller for every external operation. Grounded on the teacher's
// top-level Controller/Queue wiring in cmd/controller/main.go, which
// plays the same "one struct owns every collaborator, constructed once
// at startup" role rather than a package-level singleton.
package facade

import (
	"context"
	"errors"
	"sort"

	"k8s.io/utils/clock"

	"github.com/podfit/podfit/internal/logging"
	"github.com/podfit/podfit/pkg/liveness"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/registry"
	"github.com/podfit/podfit/pkg/repair"
)

// HeartbeatSupervisor is the subset of pkg/heartbeat.Supervisor the
// Facade drives directly.
type HeartbeatSupervisor interface {
	Start(ctx context.Context, nodeID string)
	Stop(nodeID string)
}

// RepairReporter is the subset of pkg/repair.Controller the Facade
// drives directly: EvictNode to detach-and-reschedule a manually
// removed node's pods, Step to run one synchronous reconciliation
// cycle afterward, and GetRescheduledPods for the status report
// (spec.md §4.6).
type RepairReporter interface {
	EvictNode(nodeID string) []placement.UnregisterResult
	Step(ctx context.Context) error
	GetRescheduledPods() map[string]repair.RescheduleEntry
}

// ErrInvalidCapacity is returned by AddNode for a non-positive
// cpu_capacity (spec.md §7.1, validation errors are rejected before any
// mutation).
var ErrInvalidCapacity = errors.New("facade: cpu_capacity must be positive")

// ErrInvalidRequest is returned by SchedulePod for a non-positive
// cpu_request.
var ErrInvalidRequest = errors.New("facade: cpu_request must be positive")

// ErrNoHealthyNode is returned by SchedulePod when the node Schedule
// chose was no longer Healthy by the time SchedulePod checked (spec.md
// §4.6, §5's cross-component race). The pod is left Pending.
var ErrNoHealthyNode = errors.New("facade: no healthy node for placement")

// Facade is the Control-Plane Facade. It holds no business logic of its
// own beyond sequencing; the invariants live in the collaborators.
type Facade struct {
	registry   *registry.Registry
	placement  *placement.Engine
	liveness   *liveness.Detector
	heartbeats HeartbeatSupervisor
	repair     RepairReporter
	clock      clock.Clock
}

// New wires one Facade from already-constructed collaborators. It is
// built once at process startup (spec.md §9: "no component should be a
// package-level singleton").
func New(
	reg *registry.Registry,
	plc *placement.Engine,
	liv *liveness.Detector,
	hb HeartbeatSupervisor,
	rc RepairReporter,
	clk clock.Clock,
) *Facade {
	return &Facade{
		registry:   reg,
		placement:  plc,
		liveness:   liv,
		heartbeats: hb,
		repair:     rc,
		clock:      clk,
	}
}

// AddNode admits a node: Registry first (it owns the backing
// resource), then the Placement Engine's accounting row, then starts
// its heartbeat emitter, primes one heartbeat stamp synchronously (so
// the node reads Healthy rather than Unknown the instant AddNode
// returns), and finally drains the pending queue in case the new
// capacity unblocks something already waiting (spec.md §4.6
// sequencing). If Placement rejects the node_id as a duplicate after
// Registry already accepted it, the node is torn back down rather than
// left half-admitted.
func (f *Facade) AddNode(ctx context.Context, nodeID string, cpuCapacity int) error {
	if cpuCapacity <= 0 {
		return ErrInvalidCapacity
	}

	if _, err := f.registry.Register(ctx, nodeID, cpuCapacity); err != nil {
		return err
	}

	if err := f.placement.RegisterNode(nodeID, cpuCapacity); err != nil {
		_ = f.registry.Deregister(ctx, nodeID)
		return err
	}

	f.heartbeats.Start(ctx, nodeID)
	f.liveness.ReceiveHeartbeat(nodeID)
	f.placement.DrainPending()
	return nil
}

// RemoveNode tears a node down: stop its heartbeat first (so it can't
// flip back Healthy mid-removal), forget its liveness record, evict its
// pods via the Repair Controller (which tracks old_node for the
// reschedule report the same way a failure-driven eviction would),
// then remove it from the Registry, then trigger one synchronous
// repair step so callers observe rescheduling immediately (spec.md
// §4.6, §8 "remove-while-scheduling race").
func (f *Facade) RemoveNode(ctx context.Context, nodeID string) error {
	log := logging.FromContext(ctx)
	f.heartbeats.Stop(nodeID)
	f.liveness.Forget(nodeID)
	f.repair.EvictNode(nodeID)
	err := f.registry.Deregister(ctx, nodeID)
	if stepErr := f.repair.Step(ctx); stepErr != nil {
		log.Error(stepErr, "repair step after RemoveNode completed with errors", "node_id", nodeID)
	}
	return err
}

// SchedulePod attempts to place a pod, per spec.md §4.6 / §8. If the
// pod is already assigned to a node the Registry no longer knows
// about, that stale assignment is reconciled before placement is
// attempted. If Schedule picks a node that is no longer Healthy by the
// time this returns, the placement is undone and the pod is pushed
// back to Pending (spec.md §5's cross-component race).
func (f *Facade) SchedulePod(ctx context.Context, podID string, cpuRequest int) (placement.ScheduleResult, error) {
	log := logging.FromContext(ctx)
	if cpuRequest <= 0 {
		return placement.ScheduleResult{}, ErrInvalidRequest
	}

	if nodeID, ok := f.placement.NodeOf(podID); ok && !f.registry.Exists(nodeID) {
		_ = f.placement.Unschedule(podID)
	}

	res := f.placement.Schedule(podID, cpuRequest)
	if res.Outcome == placement.Assigned && f.liveness.Classify(res.NodeID) != liveness.Healthy {
		f.placement.MarkPending(podID, cpuRequest)
		log.Info("rejected placement onto a non-healthy node", "pod_id", podID, "node_id", res.NodeID)
		return placement.ScheduleResult{Outcome: placement.Pending}, ErrNoHealthyNode
	}

	log.V(1).Info("schedule", "pod_id", podID, "cpu_request", cpuRequest, "outcome", res.Outcome)
	return res, nil
}

// NodeStatus is one node's view in GetStatus's report.
type NodeStatus struct {
	NodeID         string   `json:"node_id"`
	CPUCapacity    int      `json:"cpu_capacity"`
	CPUAvailable   int      `json:"cpu_available"`
	Pods           []string `json:"pods"`
	LivenessStatus string   `json:"liveness_status"`
	BackingHandle  string   `json:"backing_handle"`
}

// Status is the full status payload composed from every collaborator
// (spec.md §4.6, §6).
type Status struct {
	Nodes           []NodeStatus                      `json:"nodes"`
	Pending         map[string]int                    `json:"pending"`
	RescheduledPods map[string]repair.RescheduleEntry `json:"rescheduled_pods"`
}

// ListNodes joins the Registry, Placement Engine, and Liveness
// Detector into one per-node view (spec.md §4.6 GetStatus, §6
// GET /list_nodes). It takes no engine-wide lock — it reads each
// collaborator's own snapshot, so it never blocks
// Schedule/AddNode/RemoveNode (spec.md §5).
func (f *Facade) ListNodes(ctx context.Context) []NodeStatus {
	livenessSnap := f.liveness.Snapshot()
	placementNodes := f.placement.Nodes()

	nodes := make([]NodeStatus, 0, len(placementNodes))
	for _, pn := range placementNodes {
		regNode, _ := f.registry.Get(pn.NodeID)
		status := livenessSnap[pn.NodeID]
		nodes = append(nodes, NodeStatus{
			NodeID:         pn.NodeID,
			CPUCapacity:    pn.CPUCapacity,
			CPUAvailable:   pn.CPUAvailable,
			Pods:           pn.Pods,
			LivenessStatus: status.String(),
			BackingHandle:  regNode.BackingHandle.String(),
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes
}

// GetPendingPods returns a snapshot of the pending queue (spec.md §6
// GET /get_pending_pods).
func (f *Facade) GetPendingPods(ctx context.Context) map[string]int {
	return f.placement.Pending()
}

// GetRescheduledPods returns and clears the Repair Controller's
// rescheduled-pods report (spec.md §6 GET /get_rescheduled_pods).
func (f *Facade) GetRescheduledPods(ctx context.Context) map[string]repair.RescheduleEntry {
	return f.repair.GetRescheduledPods()
}

// GetStatus composes ListNodes, GetPendingPods, and
// GetRescheduledPods into one snapshot. Since it reads the
// rescheduled-pods report, calling it clears that report the same way
// GET /get_rescheduled_pods does.
func (f *Facade) GetStatus(ctx context.Context) Status {
	return Status{
		Nodes:           f.ListNodes(ctx),
		Pending:         f.GetPendingPods(ctx),
		RescheduledPods: f.GetRescheduledPods(ctx),
	}
}
