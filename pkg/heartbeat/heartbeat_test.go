package heartbeat_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/podfit/podfit/pkg/heartbeat"
)

type fakeReceiver struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{counts: make(map[string]int)}
}

func (f *fakeReceiver) ReceiveHeartbeat(nodeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[nodeID]++
}

func (f *fakeReceiver) count(nodeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[nodeID]
}

var _ = Describe("Supervisor", func() {
	var (
		clk      *testingclock.FakeClock
		receiver *fakeReceiver
		sup      *heartbeat.Supervisor
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		clk = testingclock.NewFakeClock(time.Now())
		receiver = newFakeReceiver()
		sup = heartbeat.New(clk, time.Second, receiver)
	})

	AfterEach(func() {
		sup.Wait()
	})

	It("emits an immediate heartbeat on Start, then one per tick", func() {
		sup.Start(ctx, "node-a")
		Eventually(func() int { return receiver.count("node-a") }).Should(Equal(1))

		Eventually(clk.HasWaiters).Should(BeTrue())
		clk.Step(time.Second)
		Eventually(func() int { return receiver.count("node-a") }).Should(Equal(2))

		sup.Stop("node-a")
	})

	It("stops emitting once Stop is called", func() {
		sup.Start(ctx, "node-a")
		Eventually(func() int { return receiver.count("node-a") }).Should(Equal(1))
		sup.Stop("node-a")
		sup.Wait()

		before := receiver.count("node-a")
		clk.Step(5 * time.Second)
		Consistently(func() int { return receiver.count("node-a") }).Should(Equal(before))
	})

	It("is a no-op calling Start twice for the same node", func() {
		sup.Start(ctx, "node-a")
		sup.Start(ctx, "node-a")
		Eventually(func() int { return receiver.count("node-a") }).Should(Equal(1))
		sup.Stop("node-a")
	})
})
