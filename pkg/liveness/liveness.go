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

// Package liveness implements the Liveness Detector (spec.md §4.2): a
// pure, lock-guarded predicate over heartbeat timestamps. It takes no
// action on failures itself — the Repair Controller does that — which
// is what lets tests drive it with a fake clock instead of real sleeps,
// per the design note in spec.md §9.
package liveness

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Status is a node's liveness classification at a point in time.
type Status int

const (
	Unknown Status = iota
	Healthy
	Unhealthy
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Unhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// Detector tracks last_heartbeat per node_id and classifies it against
// a configurable timeout.
type Detector struct {
	clock   clock.Clock
	timeout time.Duration

	mu   sync.RWMutex
	last map[string]time.Time
}

// New constructs a Detector. clk is almost always clock.RealClock{} in
// production and a clock/testing.FakeClock in tests.
func New(clk clock.Clock, heartbeatTimeout time.Duration) *Detector {
	return &Detector{
		clock:   clk,
		timeout: heartbeatTimeout,
		last:    make(map[string]time.Time),
	}
}

// ReceiveHeartbeat stamps node_id with the current time. Unknown nodes
// become Healthy on first stamp; the caller is responsible for Forget
// on node removal (spec.md §4.2).
func (d *Detector) ReceiveHeartbeat(nodeID string) {
	now := d.clock.Now()
	d.mu.Lock()
	defer d.mu.Unlock()
	// Heartbeats are totally ordered by arrival (spec.md §5): never let
	// an overtaken, stale stamp regress last_heartbeat.
	if existing, ok := d.last[nodeID]; !ok || now.After(existing) {
		d.last[nodeID] = now
	}
}

// Forget removes nodeID's liveness record entirely, called by the
// Facade on node removal.
func (d *Detector) Forget(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, nodeID)
}

// Classify returns node_id's current status.
func (d *Detector) Classify(nodeID string) Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.classifyLocked(nodeID, d.clock.Now())
}

func (d *Detector) classifyLocked(nodeID string, now time.Time) Status {
	last, ok := d.last[nodeID]
	if !ok {
		return Unknown
	}
	if now.Sub(last) <= d.timeout {
		return Healthy
	}
	return Unhealthy
}

// Snapshot classifies every known node against a single now() reading,
// so callers never observe two nodes judged against different instants
// within one snapshot (spec.md §4.2).
func (d *Detector) Snapshot() map[string]Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	now := d.clock.Now()
	out := make(map[string]Status, len(d.last))
	for nodeID := range d.last {
		out[nodeID] = d.classifyLocked(nodeID, now)
	}
	return out
}
