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

// Package metrics wires Prometheus instrumentation around the Facade
// (spec.md's supplemented observability surface — spec.md's own
// Non-goals exclude detailed telemetry as a *feature*, not the ambient
// practice of instrumenting an HTTP service, which the teacher does
// throughout pkg/metrics via client_golang).
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/podfit/podfit/pkg/facade"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/repair"
)

var (
	nodesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podfit",
		Name:      "nodes_added_total",
		Help:      "Total AddNode calls that succeeded.",
	})
	nodesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podfit",
		Name:      "nodes_removed_total",
		Help:      "Total RemoveNode calls that succeeded.",
	})
	podsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podfit",
		Name:      "pods_scheduled_total",
		Help:      "Total SchedulePod outcomes, by outcome.",
	}, []string{"outcome"})
	addNodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "podfit",
		Name:      "add_node_errors_total",
		Help:      "Total AddNode calls that returned an error.",
	})
)

// Facade is the subset of pkg/facade.Facade the decorator wraps.
type Facade interface {
	AddNode(ctx context.Context, nodeID string, cpuCapacity int) error
	RemoveNode(ctx context.Context, nodeID string) error
	SchedulePod(ctx context.Context, podID string, cpuRequest int) (placement.ScheduleResult, error)
	GetStatus(ctx context.Context) facade.Status
	ListNodes(ctx context.Context) []facade.NodeStatus
	GetPendingPods(ctx context.Context) map[string]int
	GetRescheduledPods(ctx context.Context) map[string]repair.RescheduleEntry
}

// ObservingFacade decorates a Facade with Prometheus counters. It holds
// no reference to internal/metrics from pkg/facade itself — the
// dependency points inward, avoiding the import cycle the teacher's own
// pkg/metrics avoids by living above its controllers, not beside them.
type ObservingFacade struct {
	inner Facade
}

func NewObservingFacade(inner Facade) *ObservingFacade {
	return &ObservingFacade{inner: inner}
}

func (o *ObservingFacade) AddNode(ctx context.Context, nodeID string, cpuCapacity int) error {
	err := o.inner.AddNode(ctx, nodeID, cpuCapacity)
	if err != nil {
		addNodeErrors.Inc()
		return err
	}
	nodesAdded.Inc()
	return nil
}

func (o *ObservingFacade) RemoveNode(ctx context.Context, nodeID string) error {
	err := o.inner.RemoveNode(ctx, nodeID)
	if err == nil {
		nodesRemoved.Inc()
	}
	return err
}

func (o *ObservingFacade) SchedulePod(ctx context.Context, podID string, cpuRequest int) (placement.ScheduleResult, error) {
	res, err := o.inner.SchedulePod(ctx, podID, cpuRequest)
	if err != nil {
		return res, err
	}
	podsScheduled.WithLabelValues(outcomeLabel(res.Outcome)).Inc()
	return res, nil
}

func (o *ObservingFacade) GetStatus(ctx context.Context) facade.Status {
	return o.inner.GetStatus(ctx)
}

func (o *ObservingFacade) ListNodes(ctx context.Context) []facade.NodeStatus {
	return o.inner.ListNodes(ctx)
}

func (o *ObservingFacade) GetPendingPods(ctx context.Context) map[string]int {
	return o.inner.GetPendingPods(ctx)
}

func (o *ObservingFacade) GetRescheduledPods(ctx context.Context) map[string]repair.RescheduleEntry {
	return o.inner.GetRescheduledPods(ctx)
}

func outcomeLabel(o placement.Outcome) string {
	switch o {
	case placement.Assigned:
		return "assigned"
	case placement.AlreadyAssigned:
		return "already_assigned"
	default:
		return "pending"
	}
}
