package liveness_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/podfit/podfit/pkg/liveness"
)

var _ = Describe("Detector", func() {
	var (
		clk *testingclock.FakeClock
		det *liveness.Detector
	)

	BeforeEach(func() {
		clk = testingclock.NewFakeClock(time.Now())
		det = liveness.New(clk, 10*time.Second)
	})

	It("classifies a node with no heartbeat as Unknown", func() {
		Expect(det.Classify("node-a")).To(Equal(liveness.Unknown))
	})

	It("classifies a freshly-heartbeating node as Healthy", func() {
		det.ReceiveHeartbeat("node-a")
		Expect(det.Classify("node-a")).To(Equal(liveness.Healthy))
	})

	It("classifies a node as Unhealthy once the timeout elapses", func() {
		det.ReceiveHeartbeat("node-a")
		clk.Step(11 * time.Second)
		Expect(det.Classify("node-a")).To(Equal(liveness.Unhealthy))
	})

	It("stays Healthy right at the timeout boundary", func() {
		det.ReceiveHeartbeat("node-a")
		clk.Step(10 * time.Second)
		Expect(det.Classify("node-a")).To(Equal(liveness.Healthy))
	})

	It("forgets a node entirely on Forget", func() {
		det.ReceiveHeartbeat("node-a")
		det.Forget("node-a")
		Expect(det.Classify("node-a")).To(Equal(liveness.Unknown))
	})

	It("snapshots every node against a single now() reading", func() {
		det.ReceiveHeartbeat("node-a")
		clk.Step(5 * time.Second)
		det.ReceiveHeartbeat("node-b")

		snap := det.Snapshot()
		Expect(snap).To(HaveKeyWithValue("node-a", liveness.Healthy))
		Expect(snap).To(HaveKeyWithValue("node-b", liveness.Healthy))
	})
})
