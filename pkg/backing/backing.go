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

// Package backing models the opaque external resource a node's
// node_id is backed by (spec.md §3, "backing_handle ... opaque
// identifier for external resource; nullable for simulated"). It plays
// the role the teacher's pkg/cloudprovider interface plays for EC2
// instances: Create/Destroy are the only two operations the rest of
// the system needs, and the concrete implementation is swappable.
package backing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Handle identifies the backing resource acquired for a node. A handle
// with Simulated set represents a purely simulated node with no
// external resource at all. The zero value has Simulated == false and
// ID == "".
type Handle struct {
	ID        string
	Simulated bool
}

func (h Handle) String() string {
	if h.Simulated {
		return fmt.Sprintf("sim:%s", h.ID)
	}
	return h.ID
}

// StructuralError marks a Create failure that must reject the
// Register call outright (spec.md §7.5's "structural" branch) as
// opposed to a recoverable failure that degrades to simulated mode.
type StructuralError struct {
	Err error
}

func (e *StructuralError) Error() string { return fmt.Sprintf("structural backing error: %v", e.Err) }
func (e *StructuralError) Unwrap() error { return e.Err }

// ErrDestroyNotFound is returned by Destroy when the handle's resource
// is already gone; callers treat it as success (spec.md §7.4,
// "Deregister ignores removal failures of already-gone resources").
var ErrDestroyNotFound = errors.New("backing: resource already gone")

// Provider acquires and releases the backing resource for a node.
// Create/Destroy run outside the Placement Engine's lock (spec.md §5):
// they are the only long-latency operations in the system.
type Provider interface {
	Create(ctx context.Context, nodeID string) (Handle, error)
	Destroy(ctx context.Context, h Handle) error
}

// Simulated never talks to anything external; it hands back a handle
// derived from a random UUID. This is the default BackingMode and the
// one exercised by every test that doesn't specifically target
// DockerProvider.
type Simulated struct{}

func NewSimulated() Simulated { return Simulated{} }

func (Simulated) Create(_ context.Context, _ string) (Handle, error) {
	return Handle{ID: uuid.NewString(), Simulated: true}, nil
}

func (Simulated) Destroy(_ context.Context, _ Handle) error {
	return nil
}
