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

// Package placement implements the Placement Engine (spec.md §4.3):
// CPU accounting and best-fit placement, with a pending queue for
// requests that don't currently fit anywhere. Every exported method
// serializes on a single engine-wide lock (spec.md §5) — cluster sizes
// are small enough that the O(N) node scan on every Schedule is not a
// concern, matching the teacher's own note that karpenter's scheduling
// loop favors a simple linear scan over a secondary index at this
// scale.
package placement

import (
	"errors"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Outcome is the result of a Schedule call.
type Outcome int

const (
	Assigned Outcome = iota
	AlreadyAssigned
	Pending
)

// ScheduleResult reports what happened to a pod_id passed to Schedule.
type ScheduleResult struct {
	Outcome Outcome
	NodeID  string // set for Assigned and AlreadyAssigned
}

// UnregisterResult pairs an evicted pod with the cpu_request it had
// recorded, so the caller (the Repair Controller) can reschedule it
// without a second lookup.
type UnregisterResult struct {
	PodID      string
	CPURequest int
}

// DrainResult is one entry of DrainPending's report.
type DrainResult struct {
	PodID  string
	Result ScheduleResult
}

type node struct {
	cpuCapacity  int
	cpuAvailable int
	assignedPods map[string]struct{}
}

// Engine owns pod↔node accounting. It has no reference to the Node
// Registry or the Liveness Detector (spec.md §9: "prefer
// dependency-free components").
type Engine struct {
	mu sync.Mutex

	nodes map[string]*node

	podToNode    map[string]string
	podToRequest map[string]int
	// requestRetainedSince tracks, for pods whose pod_to_node entry was
	// removed by Unschedule, how many Sweep calls have passed. Entries
	// are dropped from pod_to_request after exactly one cycle (spec.md
	// §9 open question 2).
	requestRetainedSince map[string]int

	pending map[string]int
}

func New() *Engine {
	return &Engine{
		nodes:                make(map[string]*node),
		podToNode:            make(map[string]string),
		podToRequest:         make(map[string]int),
		requestRetainedSince: make(map[string]int),
		pending:              make(map[string]int),
	}
}

// ErrAlreadyExists is returned by RegisterNode for a duplicate node_id.
var ErrAlreadyExists = errors.New("placement: node already exists")

// ErrNotAssigned is returned by Unschedule for a pod not currently
// assigned to any node.
var ErrNotAssigned = errors.New("placement: pod not assigned")

// RegisterNode initializes a node's accounting row.
func (e *Engine) RegisterNode(nodeID string, cpuCapacity int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.nodes[nodeID]; ok {
		return ErrAlreadyExists
	}
	e.nodes[nodeID] = &node{
		cpuCapacity:  cpuCapacity,
		cpuAvailable: cpuCapacity,
		assignedPods: make(map[string]struct{}),
	}
	return nil
}

// UnregisterNode atomically removes nodeID's row and returns every pod
// that was assigned to it; those pods move to Pending — the caller
// drives rescheduling (spec.md §4.3).
func (e *Engine) UnregisterNode(nodeID string) []UnregisterResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[nodeID]
	if !ok {
		return nil
	}
	delete(e.nodes, nodeID)

	evicted := make([]UnregisterResult, 0, len(n.assignedPods))
	for podID := range n.assignedPods {
		req := e.podToRequest[podID]
		delete(e.podToNode, podID)
		e.pending[podID] = req
		delete(e.requestRetainedSince, podID)
		evicted = append(evicted, UnregisterResult{PodID: podID, CPURequest: req})
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].PodID < evicted[j].PodID })
	return evicted
}

// Schedule places podID (requesting cpuRequest) using best-fit: among
// nodes with enough cpu_available, the one with the smallest leftover
// wins; ties break on node_id lexicographically (spec.md §4.3, §8).
func (e *Engine) Schedule(podID string, cpuRequest int) ScheduleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scheduleLocked(podID, cpuRequest)
}

func (e *Engine) scheduleLocked(podID string, cpuRequest int) ScheduleResult {
	if nodeID, ok := e.podToNode[podID]; ok {
		return ScheduleResult{Outcome: AlreadyAssigned, NodeID: nodeID}
	}

	nodeID, ok := e.bestFit(cpuRequest)
	if !ok {
		e.pending[podID] = cpuRequest
		e.podToRequest[podID] = cpuRequest
		return ScheduleResult{Outcome: Pending}
	}

	n := e.nodes[nodeID]
	n.cpuAvailable -= cpuRequest
	n.assignedPods[podID] = struct{}{}
	e.podToNode[podID] = nodeID
	e.podToRequest[podID] = cpuRequest
	delete(e.pending, podID)
	delete(e.requestRetainedSince, podID)
	return ScheduleResult{Outcome: Assigned, NodeID: nodeID}
}

// bestFit picks the fitting node_id with the smallest cpu_available
// after placement, breaking ties lexicographically.
func (e *Engine) bestFit(cpuRequest int) (string, bool) {
	candidates := lo.Filter(lo.Keys(e.nodes), func(id string, _ int) bool {
		return e.nodes[id].cpuAvailable >= cpuRequest
	})
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	best := candidates[0]
	bestLeftover := e.nodes[best].cpuAvailable - cpuRequest
	for _, id := range candidates[1:] {
		leftover := e.nodes[id].cpuAvailable - cpuRequest
		if leftover < bestLeftover {
			best, bestLeftover = id, leftover
		}
	}
	return best, true
}

// Unschedule removes podID from whatever node it's on, crediting that
// node's cpu_available. pod_to_request is retained for one further
// Sweep call (spec.md §9 open question 2).
func (e *Engine) Unschedule(podID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	nodeID, ok := e.podToNode[podID]
	if !ok {
		return ErrNotAssigned
	}
	delete(e.podToNode, podID)
	if n, ok := e.nodes[nodeID]; ok {
		delete(n.assignedPods, podID)
		n.cpuAvailable += e.podToRequest[podID]
	}
	e.requestRetainedSince[podID] = 0
	return nil
}

// MarkPending forces podID into the pending queue with cpuRequest,
// crediting back whatever node it was previously assigned to (if any).
// Used by the Facade to undo a Schedule result that raced against a
// node going Unhealthy between placement and return (spec.md §4.6,
// §5's "reject unhealthy assignment" step) — the pod must land back in
// the pending queue, not merely unassigned, so the next DrainPending
// picks it up.
func (e *Engine) MarkPending(podID string, cpuRequest int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if nodeID, ok := e.podToNode[podID]; ok {
		if n, ok := e.nodes[nodeID]; ok {
			delete(n.assignedPods, podID)
			n.cpuAvailable += e.podToRequest[podID]
		}
		delete(e.podToNode, podID)
	}
	e.podToRequest[podID] = cpuRequest
	e.pending[podID] = cpuRequest
	delete(e.requestRetainedSince, podID)
}

// SweepStaleRequests drops pod_to_request entries that have survived
// one full cycle since Unschedule without being rescheduled or
// re-evicted. Call once per Repair Controller cycle.
func (e *Engine) SweepStaleRequests() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for podID, age := range e.requestRetainedSince {
		if _, assigned := e.podToNode[podID]; assigned {
			delete(e.requestRetainedSince, podID)
			continue
		}
		if _, pending := e.pending[podID]; pending {
			delete(e.requestRetainedSince, podID)
			continue
		}
		if age >= 1 {
			delete(e.podToRequest, podID)
			delete(e.requestRetainedSince, podID)
		} else {
			e.requestRetainedSince[podID] = age + 1
		}
	}
}

// DrainPending attempts Schedule for every currently-pending pod, in a
// stable pod_id order, against a snapshot of the pending set taken at
// the start of the call.
func (e *Engine) DrainPending() []DrainResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	podIDs := lo.Keys(e.pending)
	sort.Strings(podIDs)

	results := make([]DrainResult, 0, len(podIDs))
	for _, podID := range podIDs {
		req, ok := e.pending[podID]
		if !ok {
			// Already scheduled earlier in this same drain pass via a
			// different path; nothing left to do.
			continue
		}
		results = append(results, DrainResult{PodID: podID, Result: e.scheduleLocked(podID, req)})
	}
	return results
}

// GetCpuRequest returns podID's recorded cpu_request, or a defensive
// fallback of 10 if the accounting record was already lost (spec.md
// §4.3, §9 — flagged as a fallback that a correct eviction path should
// never need).
func (e *Engine) GetCpuRequest(podID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if req, ok := e.podToRequest[podID]; ok {
		return req
	}
	return 10
}

// NodeView is a read-only snapshot of one node's placement state, used
// by GetStatus (spec.md §4.6).
type NodeView struct {
	NodeID       string
	CPUCapacity  int
	CPUAvailable int
	Pods         []string
}

// Nodes returns a snapshot of every node's placement-engine view,
// sorted by node_id.
func (e *Engine) Nodes() []NodeView {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := lo.Keys(e.nodes)
	sort.Strings(ids)
	out := make([]NodeView, 0, len(ids))
	for _, id := range ids {
		n := e.nodes[id]
		pods := lo.Keys(n.assignedPods)
		sort.Strings(pods)
		out = append(out, NodeView{NodeID: id, CPUCapacity: n.cpuCapacity, CPUAvailable: n.cpuAvailable, Pods: pods})
	}
	return out
}

// Pending returns a copy of the pending queue (pod_id → cpu_request).
func (e *Engine) Pending() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.pending))
	for k, v := range e.pending {
		out[k] = v
	}
	return out
}

// NodeOf returns the node_id podID is currently assigned to, if any.
func (e *Engine) NodeOf(podID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	nodeID, ok := e.podToNode[podID]
	return nodeID, ok
}
