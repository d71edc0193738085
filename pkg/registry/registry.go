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

// Package registry implements the Node Registry (spec.md §4.1): the
// source of truth for node admission. It is grounded on the teacher's
// pkg/cache package — a small mutex-guarded map with a constructor that
// owns its own lock, no shared global state.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/podfit/podfit/internal/logging"
	"github.com/podfit/podfit/pkg/backing"
)

// Node is a snapshot of a registry record. List() and Get() return
// copies of this type, never pointers into registry-owned state.
type Node struct {
	NodeID       string
	CPUCapacity  int
	BackingHandle backing.Handle
}

// ErrAlreadyExists is returned by Register for a duplicate (including a
// previously-removed, i.e. tombstoned) node_id.
var ErrAlreadyExists = fmt.Errorf("registry: node already exists")

// ErrNotFound is returned by Deregister for an unknown node_id.
var ErrNotFound = fmt.Errorf("registry: node not found")

// Registry tracks admitted nodes and drives their backing-resource
// lifecycle. Register/Deregister serialize on a single mutex; the
// backing-resource call itself runs outside that lock (spec.md §5).
type Registry struct {
	provider backing.Provider

	mu sync.Mutex
	// nodes holds only currently-admitted nodes.
	nodes map[string]Node
	// tombstones records every node_id ever removed, so ids are
	// single-use per process lifetime (spec.md §9 open question).
	tombstones map[string]struct{}
}

func New(provider backing.Provider) *Registry {
	return &Registry{
		provider:   provider,
		nodes:      make(map[string]Node),
		tombstones: make(map[string]struct{}),
	}
}

// Register admits a node_id with the given capacity. It acquires a
// backing resource via the configured Provider; a structural failure
// there leaves no record at all (idempotent-on-failure, spec.md §4.1).
func (r *Registry) Register(ctx context.Context, nodeID string, cpuCapacity int) (backing.Handle, error) {
	log := logging.FromContext(ctx)

	r.mu.Lock()
	if r.blocked(nodeID) {
		r.mu.Unlock()
		return backing.Handle{}, ErrAlreadyExists
	}
	r.mu.Unlock()

	handle, err := r.provider.Create(ctx, nodeID)
	if err != nil {
		var structural *backing.StructuralError
		if errors.As(err, &structural) {
			return backing.Handle{}, fmt.Errorf("registry: acquiring backing resource for %s: %w", nodeID, structural)
		}
		// Recoverable: degrade to a simulated handle rather than
		// failing the node admission (spec.md §7.4).
		log.Info("backing resource create failed, degrading to simulated handle", "node_id", nodeID, "error", err.Error())
		handle = backing.Handle{ID: nodeID, Simulated: true}
	}

	r.mu.Lock()
	if r.exists(nodeID) {
		// Lost a race with a concurrent Register for the same id;
		// release what we just acquired and report the conflict.
		r.mu.Unlock()
		_ = r.provider.Destroy(ctx, handle)
		return backing.Handle{}, ErrAlreadyExists
	}
	r.nodes[nodeID] = Node{NodeID: nodeID, CPUCapacity: cpuCapacity, BackingHandle: handle}
	r.mu.Unlock()
	return handle, nil
}

// Deregister releases nodeID's backing resource (best effort) and
// removes its record regardless of cleanup success (spec.md §4.1,
// §7.4).
func (r *Registry) Deregister(ctx context.Context, nodeID string) error {
	log := logging.FromContext(ctx)

	r.mu.Lock()
	node, ok := r.nodes[nodeID]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.nodes, nodeID)
	r.tombstones[nodeID] = struct{}{}
	r.mu.Unlock()

	if err := r.provider.Destroy(ctx, node.BackingHandle); err != nil {
		log.Error(err, "releasing backing resource failed, node removed anyway", "node_id", nodeID)
	}
	return nil
}

func (r *Registry) Exists(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exists(nodeID)
}

// exists must be called with mu held.
func (r *Registry) exists(nodeID string) bool {
	_, ok := r.nodes[nodeID]
	return ok
}

// blocked reports whether nodeID cannot be (re-)registered: either
// currently admitted, or tombstoned by a prior Deregister. Must be
// called with mu held.
func (r *Registry) blocked(nodeID string) bool {
	if r.exists(nodeID) {
		return true
	}
	_, tombstoned := r.tombstones[nodeID]
	return tombstoned
}

// List returns a snapshot of every admitted node, sorted by node_id is
// the caller's job (this is a map-backed store; order is unspecified).
func (r *Registry) List() []Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func (r *Registry) Get(nodeID string) (Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[nodeID]
	return n, ok
}

