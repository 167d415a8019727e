// Package api exposes the operator surface over HTTP: submit commands,
// decide approvals, inspect tasks and their audit trails, and read the
// dashboard projection.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/aiarmour/armour/internal/command"
	"github.com/aiarmour/armour/internal/metrics"
	"github.com/aiarmour/armour/internal/persistence"
	"github.com/aiarmour/armour/internal/pipeline"
	"github.com/aiarmour/armour/internal/task"
)

// Server handles the HTTP surface. All mutation goes through the runner;
// reads go to the store and the metrics projection.
type Server struct {
	runner  *pipeline.Runner
	store   persistence.Store
	metrics *metrics.Projection
	log     *logrus.Logger
}

func NewServer(runner *pipeline.Runner, store persistence.Store, proj *metrics.Projection, log *logrus.Logger) *Server {
	return &Server{runner: runner, store: store, metrics: proj, log: log}
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/command", s.handleCommand)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{taskID}", s.handleGetTask)
		r.Get("/tasks/{taskID}/audit", s.handleAudit)
		r.Post("/tasks/{taskID}/decision", s.handleDecision)
		r.Post("/tasks/{taskID}/cancel", s.handleCancel)
		r.Get("/approvals", s.handleApprovals)
		r.Get("/dashboard", s.handleDashboard)
	})

	return r
}

type commandReq struct {
	Text string `json:"text"`
}

type commandResp struct {
	TaskID   string `json:"task_id"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Priority string `json:"priority"`
}

// handleCommand parses a free-text operator command into a task and admits
// it to the pipeline.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, `invalid body: {"text":"..."}`, http.StatusBadRequest)
		return
	}

	t, err := command.Parse(req.Text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := s.runner.Submit(r.Context(), t); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.WithFields(logrus.Fields{"task": t.ID, "role": t.Role}).Info("command accepted")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(commandResp{
		TaskID:   t.ID,
		Role:     string(t.Role),
		Name:     t.Name,
		Priority: string(t.Priority),
	})
}

type taskResp struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Role      string            `json:"role"`
	Origin    string            `json:"origin"`
	Priority  string            `json:"priority"`
	Status    string            `json:"status"`
	Attempts  int               `json:"attempts"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func toTaskResp(t *task.Task) taskResp {
	return taskResp{
		ID:        t.ID,
		Name:      t.Name,
		Role:      string(t.Role),
		Origin:    string(t.Origin),
		Priority:  string(t.Priority),
		Status:    t.Status.String(),
		Attempts:  t.Attempts,
		Payload:   t.Payload,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]taskResp, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResp(t))
	}
	writeJSON(w, out)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTask(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toTaskResp(t))
}

type auditResp struct {
	Seq     int       `json:"seq"`
	Stage   string    `json:"stage"`
	Outcome string    `json:"outcome"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.AuditEntries(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]auditResp, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResp{
			Seq:     e.Seq,
			Stage:   string(e.Stage),
			Outcome: e.Outcome,
			Detail:  e.Detail,
			At:      e.At,
		})
	}
	writeJSON(w, out)
}

type decisionReq struct {
	Approved bool   `json:"approved"`
	Decider  string `json:"decider"`
}

// handleDecision records a human approval or denial for a parked task.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Decider == "" {
		http.Error(w, `invalid body: {"approved":true,"decider":"..."}`, http.StatusBadRequest)
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if err := s.runner.Decide(taskID, req.Approved, req.Decider); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"task_id": taskID, "status": "decided"})
}

type cancelReq struct {
	Decider string `json:"decider"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Decider == "" {
		http.Error(w, `invalid body: {"decider":"..."}`, http.StatusBadRequest)
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if err := s.runner.CancelApproval(taskID, req.Decider); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, map[string]string{"task_id": taskID, "status": "cancelled"})
}

type approvalResp struct {
	TaskID    string    `json:"task_id"`
	Role      string    `json:"role"`
	Summary   string    `json:"summary"`
	Amount    float64   `json:"amount"`
	Threshold string    `json:"threshold"`
	Deadline  time.Time `json:"deadline"`
}

func (s *Server) handleApprovals(w http.ResponseWriter, _ *http.Request) {
	pending := s.runner.PendingApprovals()
	out := make([]approvalResp, 0, len(pending))
	for _, p := range pending {
		out = append(out, approvalResp{
			TaskID:    p.Task.ID,
			Role:      string(p.Task.Role),
			Summary:   p.Action.Summary,
			Amount:    p.Action.Amount,
			Threshold: p.Decision.Threshold,
			Deadline:  p.Deadline,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
