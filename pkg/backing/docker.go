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

package backing

import (
	"context"
	"errors"
	"fmt"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/google/uuid"
)

// DockerProvider acquires a real backing resource for a node: a single
// paused container running Image, named after the node. It exists so
// podfit's "container runtime integration" collaborator (spec.md §1,
// explicitly out of scope for the scheduling core) has a concrete,
// swappable implementation rather than an unimplemented stub.
//
// Engine errors other than not-found and invalid-parameter (timeouts,
// connection resets, an unreachable daemon) are retried with
// avast/retry-go, the same library the teacher's pkg/batcher uses
// around EC2 CreateFleet calls. Errors the engine reports as not-found,
// invalid-parameter or unauthorized (an image that doesn't exist, for
// example) are structural: Create returns a *StructuralError and
// Register rejects the node outright rather than silently degrading.
// Every other failure, an unreachable daemon included, is returned as
// a recoverable error, and Register degrades the node to a simulated
// handle.
type DockerProvider struct {
	cli   *client.Client
	image string
}

// NewDockerProvider connects to the local Docker engine using the
// environment-derived configuration (DOCKER_HOST etc.), the
// conventional client.NewClientWithOpts(client.FromEnv) bootstrap.
func NewDockerProvider(image string) (*DockerProvider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &StructuralError{Err: fmt.Errorf("connect to docker engine: %w", err)}
	}
	return &DockerProvider{cli: cli, image: image}, nil
}

func (d *DockerProvider) Create(ctx context.Context, nodeID string) (Handle, error) {
	name := fmt.Sprintf("podfit-node-%s-%s", nodeID, uuid.NewString()[:8])

	var containerID string
	err := retry.Do(
		func() error {
			resp, err := d.cli.ContainerCreate(ctx, &container.Config{
				Image: d.image,
				Cmd:   []string{"sleep", "infinity"},
				Labels: map[string]string{
					"podfit.node-id": nodeID,
				},
			}, nil, nil, nil, name)
			if err != nil {
				return err
			}
			containerID = resp.ID
			return d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
		},
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return !errdefs.IsNotFound(err) && !errdefs.IsInvalidParameter(err)
		}),
	)
	if err != nil {
		if errdefs.IsNotFound(err) || errdefs.IsInvalidParameter(err) || errdefs.IsUnauthorized(err) {
			return Handle{}, &StructuralError{Err: err}
		}
		// Recoverable: the caller degrades to a simulated handle rather
		// than rejecting the node outright (spec.md §7.4).
		return Handle{}, err
	}
	return Handle{ID: containerID}, nil
}

func (d *DockerProvider) Destroy(ctx context.Context, h Handle) error {
	if h.Simulated {
		return nil
	}
	err := d.cli.ContainerRemove(ctx, h.ID, container.RemoveOptions{Force: true})
	if err == nil {
		return nil
	}
	if errdefs.IsNotFound(err) || errors.Is(err, context.Canceled) {
		return ErrDestroyNotFound
	}
	return err
}
