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

// Package httpapi exposes the Control-Plane Facade over the six JSON
// routes spec.md §6 names: POST /add_node, POST /remove_node,
// POST /schedule_pod, GET /list_nodes, GET /get_rescheduled_pods, and
// GET /get_pending_pods. Grounded on the teacher's lack of an HTTP
// layer of its own (it's a controller-runtime manager, not an API
// server) — the router choice comes from the rest of the retrieved
// pack, which reaches for go-chi/chi for exactly this shape of small
// JSON service, paired with go-playground/validator for request
// validation at the boundary rather than inside the Facade.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/podfit/podfit/internal/logging"
	"github.com/podfit/podfit/pkg/facade"
	"github.com/podfit/podfit/pkg/placement"
	"github.com/podfit/podfit/pkg/registry"
	"github.com/podfit/podfit/pkg/repair"
)

// Facade is the subset of the Control-Plane Facade the HTTP layer
// drives. Satisfied by both *facade.Facade and
// *internal/metrics.ObservingFacade.
type Facade interface {
	AddNode(ctx context.Context, nodeID string, cpuCapacity int) error
	RemoveNode(ctx context.Context, nodeID string) error
	SchedulePod(ctx context.Context, podID string, cpuRequest int) (placement.ScheduleResult, error)
	ListNodes(ctx context.Context) []facade.NodeStatus
	GetPendingPods(ctx context.Context) map[string]int
	GetRescheduledPods(ctx context.Context) map[string]repair.RescheduleEntry
}

var validate = validator.New()

// Defaults holds the cpu_capacity/cpu_request fallbacks spec.md §6
// lists for /add_node and /schedule_pod (`cpu_capacity?=100`,
// `cpu_request?=10`).
type Defaults struct {
	NodeCPU int
	PodCPU  int
}

// Server holds the chi router and its Facade dependency.
type Server struct {
	router   chi.Router
	facade   Facade
	defaults Defaults
}

// New builds the router with the six routes spec.md §6 requires, plus
// GET /healthz (liveness probe for the process itself — /metrics is
// mounted separately by main via promhttp.Handler).
func New(f Facade, defaults Defaults) *Server {
	s := &Server{facade: f, defaults: defaults}
	r := chi.NewRouter()
	r.Post("/add_node", s.handleAddNode)
	r.Post("/remove_node", s.handleRemoveNode)
	r.Post("/schedule_pod", s.handleSchedulePod)
	r.Get("/list_nodes", s.handleListNodes)
	r.Get("/get_rescheduled_pods", s.handleGetRescheduledPods)
	r.Get("/get_pending_pods", s.handleGetPendingPods)
	r.Get("/healthz", s.handleHealthz)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying chi.Router. main does not use it:
// /metrics is served from its own mux on a separate listener.
func (s *Server) Router() chi.Router { return s.router }

type addNodeRequest struct {
	NodeID      string `json:"node_id" validate:"required"`
	CPUCapacity int    `json:"cpu_capacity" validate:"gte=0"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.CPUCapacity == 0 {
		req.CPUCapacity = s.defaults.NodeCPU
	}
	if err := s.facade.AddNode(r.Context(), req.NodeID, req.CPUCapacity); err != nil {
		writeFacadeError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "node " + req.NodeID + " added",
	})
}

type removeNodeRequest struct {
	NodeID string `json:"node_id" validate:"required"`
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	var req removeNodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.facade.RemoveNode(r.Context(), req.NodeID); err != nil {
		writeFacadeError(w, r.Context(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "node " + req.NodeID + " removed",
	})
}

type schedulePodRequest struct {
	PodID      string `json:"pod_id" validate:"required"`
	CPURequest int    `json:"cpu_request" validate:"gte=0"`
}

func (s *Server) handleSchedulePod(w http.ResponseWriter, r *http.Request) {
	var req schedulePodRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.CPURequest == 0 {
		req.CPURequest = s.defaults.PodCPU
	}

	res, err := s.facade.SchedulePod(r.Context(), req.PodID, req.CPURequest)
	if err != nil && !errors.Is(err, facade.ErrNoHealthyNode) {
		writeFacadeError(w, r.Context(), err)
		return
	}

	switch res.Outcome {
	case placement.Assigned, placement.AlreadyAssigned:
		writeJSON(w, http.StatusCreated, map[string]string{
			"message": "pod " + req.PodID + " scheduled",
			"node":    res.NodeID,
		})
	default:
		writeError(w, http.StatusBadRequest, "no node available to place pod "+req.PodID)
	}
}

type nodeListEntry struct {
	ContainerID  string   `json:"container_id"`
	CPUCapacity  int      `json:"cpu_capacity"`
	CPUAvailable int      `json:"cpu_available"`
	Health       string   `json:"health"`
	Pods         []string `json:"pods"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.facade.ListNodes(r.Context())
	out := make(map[string]nodeListEntry, len(nodes))
	for _, n := range nodes {
		pods := n.Pods
		if pods == nil {
			pods = []string{}
		}
		out[n.NodeID] = nodeListEntry{
			ContainerID:  n.BackingHandle,
			CPUCapacity:  n.CPUCapacity,
			CPUAvailable: n.CPUAvailable,
			Health:       n.LivenessStatus,
			Pods:         pods,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type rescheduledEntry struct {
	OldNode string `json:"old_node"`
	NewNode string `json:"new_node,omitempty"`
	Status  string `json:"status"`
}

func (s *Server) handleGetRescheduledPods(w http.ResponseWriter, r *http.Request) {
	report := s.facade.GetRescheduledPods(r.Context())
	out := make(map[string]rescheduledEntry, len(report))
	for podID, entry := range report {
		out[podID] = rescheduledEntry{OldNode: entry.OldNode, NewNode: entry.NewNode, Status: entry.Status}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rescheduled_pods": out})
}

type pendingEntry struct {
	CPURequest int `json:"cpu_request"`
}

func (s *Server) handleGetPendingPods(w http.ResponseWriter, r *http.Request) {
	pending := s.facade.GetPendingPods(r.Context())
	out := make(map[string]pendingEntry, len(pending))
	for podID, req := range pending {
		out[podID] = pendingEntry{CPURequest: req}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending_pods": out})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeFacadeError(w http.ResponseWriter, ctx context.Context, err error) {
	log := logging.FromContext(ctx)
	switch {
	case errors.Is(err, facade.ErrInvalidCapacity), errors.Is(err, facade.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrAlreadyExists), errors.Is(err, placement.ErrAlreadyExists):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error(err, "unhandled facade error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
