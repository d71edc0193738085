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

// Package heartbeat implements the Heartbeat Emitter/Supervisor
// (spec.md §4.4): one synthetic emitter per admitted node, each ticking
// on its own clock-driven interval and calling into the Liveness
// Detector. Shape grounded on the original implementation's
// node.py Node, which spawns one thread per node to loop a heartbeat
// call on an interval — ported here to one goroutine per node, fanned
// out through sourcegraph/conc so a panic in one node's emitter can't
// take down the others or the process.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc"
	"k8s.io/utils/clock"

	"github.com/podfit/podfit/internal/logging"
)

// Receiver is the subset of the Liveness Detector the Supervisor needs.
type Receiver interface {
	ReceiveHeartbeat(nodeID string)
}

// Supervisor owns one emitter goroutine per admitted node_id.
type Supervisor struct {
	clock    clock.Clock
	interval time.Duration
	receiver Receiver

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      conc.WaitGroup
}

// New constructs a Supervisor. interval is the synthetic heartbeat
// period; it is independent of the Liveness Detector's timeout
// (spec.md §4.4 keeps emission and detection as separate concerns).
func New(clk clock.Clock, interval time.Duration, receiver Receiver) *Supervisor {
	return &Supervisor{
		clock:    clk,
		interval: interval,
		receiver: receiver,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins emitting heartbeats for nodeID. Calling Start twice for
// the same node_id is a no-op on the second call — the caller
// (the Facade) only does this once per AddNode.
func (s *Supervisor) Start(ctx context.Context, nodeID string) {
	s.mu.Lock()
	if _, ok := s.cancels[nodeID]; ok {
		s.mu.Unlock()
		return
	}
	emitCtx, cancel := context.WithCancel(ctx)
	s.cancels[nodeID] = cancel
	s.mu.Unlock()

	log := logging.FromContext(ctx)
	s.wg.Go(func() {
		s.emit(emitCtx, nodeID, log)
	})
}

func (s *Supervisor) emit(ctx context.Context, nodeID string, log logr.Logger) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.V(1).Info("heartbeat emitter started", "node_id", nodeID)
	defer log.V(1).Info("heartbeat emitter stopped", "node_id", nodeID)

	s.receiver.ReceiveHeartbeat(nodeID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.receiver.ReceiveHeartbeat(nodeID)
		}
	}
}

// Stop halts nodeID's emitter. It does not block until the goroutine
// has exited — callers that need that guarantee use Wait.
func (s *Supervisor) Stop(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[nodeID]; ok {
		cancel()
		delete(s.cancels, nodeID)
	}
}

// Wait blocks until every started emitter goroutine has exited. Used
// during graceful shutdown after every emitter has been Stop()ped.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
