package facade_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/podfit/podfit/pkg/backing"
	"github.com/podfit/podfit/pkg/facade"
	"github.com/podfit/podfit/pkg/heartbeat"
	"github.com/podfit/podfit/pkg/liveness"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/registry"
	"github.com/podfit/podfit/pkg/repair"
)

// noopRepair satisfies facade.RepairReporter without running an actual
// repair loop; these tests exercise the Facade's own sequencing, not
// the Repair Controller (that has its own suite). EvictNode delegates
// to a real placement.Engine passed in by the test so RemoveNode's
// eviction is still observable.
type noopRepair struct {
	plc *placement.Engine
}

func (n noopRepair) EvictNode(nodeID string) []placement.UnregisterResult {
	return n.plc.UnregisterNode(nodeID)
}
func (noopRepair) Step(context.Context) error                             { return nil }
func (noopRepair) GetRescheduledPods() map[string]repair.RescheduleEntry { return nil }

var _ = Describe("Facade", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		clk    *testingclock.FakeClock
		reg    *registry.Registry
		plc    *placement.Engine
		liv    *liveness.Detector
		hb     *heartbeat.Supervisor
		f      *facade.Facade
	)

	BeforeEach(func() {
		// Emitters started by AddNode live until their context ends, so
		// the context is canceled before AfterEach waits on them.
		ctx, cancel = context.WithCancel(context.Background())
		clk = testingclock.NewFakeClock(time.Now())
		reg = registry.New(backing.NewSimulated())
		plc = placement.New()
		liv = liveness.New(clk, 10*time.Second)
		hb = heartbeat.New(clk, time.Second, liv)
		f = facade.New(reg, plc, liv, hb, noopRepair{plc: plc}, clk)
	})

	AfterEach(func() {
		cancel()
		hb.Wait()
	})

	It("rejects AddNode with non-positive capacity before touching the registry", func() {
		err := f.AddNode(ctx, "node-a", 0)
		Expect(err).To(MatchError(facade.ErrInvalidCapacity))
		Expect(reg.Exists("node-a")).To(BeFalse())
	})

	It("admits a node into both the registry and the placement engine, and starts its heartbeat", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		Expect(reg.Exists("node-a")).To(BeTrue())
		Expect(plc.Nodes()).To(HaveLen(1))

		Eventually(func() liveness.Status { return liv.Classify("node-a") }).Should(Equal(liveness.Healthy))
	})

	It("schedules a pod onto an admitted node", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		res, err := f.SchedulePod(ctx, "pod-1", 20)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(placement.Assigned))
		Expect(res.NodeID).To(Equal("node-a"))
	})

	It("rejects SchedulePod with a non-positive cpu_request", func() {
		_, err := f.SchedulePod(ctx, "pod-1", 0)
		Expect(err).To(MatchError(facade.ErrInvalidRequest))
	})

	It("removes a node from every collaborator on RemoveNode", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		_, err := f.SchedulePod(ctx, "pod-1", 20)
		Expect(err).NotTo(HaveOccurred())

		Expect(f.RemoveNode(ctx, "node-a")).To(Succeed())

		Expect(reg.Exists("node-a")).To(BeFalse())
		Expect(liv.Classify("node-a")).To(Equal(liveness.Unknown))

		status := f.GetStatus(ctx)
		Expect(status.Nodes).To(BeEmpty())
	})

	It("reports cluster status across registry, placement, and liveness", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		_, err := f.SchedulePod(ctx, "pod-1", 20)
		Expect(err).NotTo(HaveOccurred())

		status := f.GetStatus(ctx)
		Expect(status.Nodes).To(HaveLen(1))
		Expect(status.Nodes[0].NodeID).To(Equal("node-a"))
		Expect(status.Nodes[0].CPUAvailable).To(Equal(80))
		Expect(status.Nodes[0].Pods).To(ConsistOf("pod-1"))
	})

	It("rejects placement onto a node that went Unhealthy between Schedule and return", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		// Stop node-a's emitter first so no heartbeat lands after the
		// clock jump and turns it Healthy again.
		cancel()
		hb.Wait()
		clk.Step(time.Hour) // far past the 10s heartbeat_timeout

		res, err := f.SchedulePod(ctx, "pod-1", 20)
		Expect(err).To(MatchError(facade.ErrNoHealthyNode))
		Expect(res.Outcome).To(Equal(placement.Pending))

		Expect(plc.Pending()).To(HaveKeyWithValue("pod-1", 20))
		_, assigned := plc.NodeOf("pod-1")
		Expect(assigned).To(BeFalse())
	})

	It("reconciles a pod assigned to a node the Registry no longer knows", func() {
		Expect(f.AddNode(ctx, "node-a", 100)).To(Succeed())
		// node-b exists only in the Placement Engine, never admitted
		// through the Registry — simulates a pod left over from a
		// node the Registry has since forgotten.
		Expect(plc.RegisterNode("node-b", 20)).To(Succeed())
		Expect(plc.Schedule("pod-1", 20).Outcome).To(Equal(placement.Assigned))
		nodeID, ok := plc.NodeOf("pod-1")
		Expect(ok).To(BeTrue())
		Expect(nodeID).To(Equal("node-b"))
		Expect(reg.Exists("node-b")).To(BeFalse())

		// The stale assignment is released first, which credits node-b
		// back to 20 free; best-fit then picks node-b again (leftover 0
		// beats node-a's 80). node-b has never heartbeated, so the
		// placement is rejected and the pod waits in Pending.
		res, err := f.SchedulePod(ctx, "pod-1", 20)
		Expect(err).To(MatchError(facade.ErrNoHealthyNode))
		Expect(res.Outcome).To(Equal(placement.Pending))
		Expect(plc.Pending()).To(HaveKeyWithValue("pod-1", 20))
	})
})
