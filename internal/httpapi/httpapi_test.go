package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/podfit/podfit/internal/httpapi"
	"github.com/podfit/podfit/pkg/facade"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/registry"
	"github.com/podfit/podfit/pkg/repair"
)

// fakeFacade lets these tests drive the HTTP layer's routing,
// decoding, defaulting, and error-translation logic without a real
// control plane underneath (that's covered by pkg/facade's own
// suite).
type fakeFacade struct {
	addNodeErr  error
	removeErr   error
	scheduleRes placement.ScheduleResult
	scheduleErr error

	lastNodeID  string
	lastCPUCap  int
	lastPodID   string
	lastCPUReq  int

	nodes    []facade.NodeStatus
	pending  map[string]int
	rescheds map[string]repair.RescheduleEntry
}

func (f *fakeFacade) AddNode(_ context.Context, nodeID string, cpuCapacity int) error {
	f.lastNodeID, f.lastCPUCap = nodeID, cpuCapacity
	return f.addNodeErr
}

func (f *fakeFacade) RemoveNode(_ context.Context, nodeID string) error {
	f.lastNodeID = nodeID
	return f.removeErr
}

func (f *fakeFacade) SchedulePod(_ context.Context, podID string, cpuRequest int) (placement.ScheduleResult, error) {
	f.lastPodID, f.lastCPUReq = podID, cpuRequest
	return f.scheduleRes, f.scheduleErr
}

func (f *fakeFacade) ListNodes(context.Context) []facade.NodeStatus { return f.nodes }
func (f *fakeFacade) GetPendingPods(context.Context) map[string]int { return f.pending }
func (f *fakeFacade) GetRescheduledPods(context.Context) map[string]repair.RescheduleEntry {
	return f.rescheds
}

func post(srv *httpapi.Server, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func get(srv *httpapi.Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

var _ = Describe("Server", func() {
	var (
		f   *fakeFacade
		srv *httpapi.Server
	)

	BeforeEach(func() {
		f = &fakeFacade{
			pending:  map[string]int{},
			rescheds: map[string]repair.RescheduleEntry{},
		}
		srv = httpapi.New(f, httpapi.Defaults{NodeCPU: 100, PodCPU: 10})
	})

	It("POST /add_node defaults cpu_capacity and returns 201", func() {
		rec := post(srv, "/add_node", map[string]string{"node_id": "n1"})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(f.lastCPUCap).To(Equal(100))
	})

	It("POST /add_node returns 400 when node_id is missing", func() {
		rec := post(srv, "/add_node", map[string]int{"cpu_capacity": 50})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("POST /add_node returns 400 on a duplicate node_id", func() {
		f.addNodeErr = registry.ErrAlreadyExists
		rec := post(srv, "/add_node", map[string]interface{}{"node_id": "n1", "cpu_capacity": 10})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("error"))
	})

	It("POST /remove_node returns 200 on success", func() {
		rec := post(srv, "/remove_node", map[string]string{"node_id": "n1"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(f.lastNodeID).To(Equal("n1"))
	})

	It("POST /schedule_pod defaults cpu_request and reports the assigned node", func() {
		f.scheduleRes = placement.ScheduleResult{Outcome: placement.Assigned, NodeID: "n1"}
		rec := post(srv, "/schedule_pod", map[string]string{"pod_id": "p1"})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(f.lastCPUReq).To(Equal(10))

		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["node"]).To(Equal("n1"))
	})

	It("POST /schedule_pod returns 400 when placement lands in Pending", func() {
		f.scheduleRes = placement.ScheduleResult{Outcome: placement.Pending}
		rec := post(srv, "/schedule_pod", map[string]interface{}{"pod_id": "p1", "cpu_request": 500})
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("GET /list_nodes reports every node with container_id, health, and pods", func() {
		f.nodes = []facade.NodeStatus{
			{NodeID: "n1", CPUCapacity: 100, CPUAvailable: 80, Pods: []string{"p1"}, LivenessStatus: "Healthy", BackingHandle: "sim-n1"},
		}
		rec := get(srv, "/list_nodes")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body map[string]struct {
			ContainerID  string   `json:"container_id"`
			CPUCapacity  int      `json:"cpu_capacity"`
			CPUAvailable int      `json:"cpu_available"`
			Health       string   `json:"health"`
			Pods         []string `json:"pods"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKey("n1"))
		Expect(body["n1"].ContainerID).To(Equal("sim-n1"))
		Expect(body["n1"].Health).To(Equal("Healthy"))
		Expect(body["n1"].Pods).To(ConsistOf("p1"))
	})

	It("GET /get_rescheduled_pods reports old_node/new_node/status per pod", func() {
		f.rescheds = map[string]repair.RescheduleEntry{
			"p1": {OldNode: "n1", NewNode: "n2", Status: "rescheduled"},
		}
		rec := get(srv, "/get_rescheduled_pods")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			RescheduledPods map[string]struct {
				OldNode string `json:"old_node"`
				NewNode string `json:"new_node"`
				Status  string `json:"status"`
			} `json:"rescheduled_pods"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.RescheduledPods["p1"].OldNode).To(Equal("n1"))
		Expect(body.RescheduledPods["p1"].NewNode).To(Equal("n2"))
		Expect(body.RescheduledPods["p1"].Status).To(Equal("rescheduled"))
	})

	It("GET /get_pending_pods reports each pending pod's cpu_request", func() {
		f.pending = map[string]int{"p1": 30}
		rec := get(srv, "/get_pending_pods")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body struct {
			PendingPods map[string]struct {
				CPURequest int `json:"cpu_request"`
			} `json:"pending_pods"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.PendingPods["p1"].CPURequest).To(Equal(30))
	})
})
