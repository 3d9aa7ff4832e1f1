package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"taskpulse/internal/domain"
	"taskpulse/internal/recalc"
	"taskpulse/internal/scoring"
	"taskpulse/internal/store"
	"taskpulse/internal/taskops"
)

type Server struct {
	store   *store.Store
	tasks   *taskops.Service
	scores  *scoring.Service
	recalcs *recalc.Manager
}

func NewServer(st *store.Store, tasks *taskops.Service, scores *scoring.Service, recalcs *recalc.Manager) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{store: st, tasks: tasks, scores: scores, recalcs: recalcs}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Post("/api/users", s.createUser)
	r.Get("/api/users/{id}/score", s.userScore)
	r.Get("/api/users/{id}/score/rolling", s.userScoreRolling)
	r.Post("/api/users/{id}/recalc", s.manualRecalc)

	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Post("/api/tasks/{id}/status", s.updateStatus)
	r.Post("/api/tasks/{id}/assignees", s.reassign)
	r.Delete("/api/tasks/{id}", s.deleteTask)
	r.Post("/api/tasks/{id}/priority", s.changePriority)
	r.Post("/api/tasks/{id}/verification", s.verifyTask)
	r.Post("/api/tasks/{id}/extensions", s.requestExtension)
	r.Post("/api/extensions/{id}/decision", s.processExtension)

	r.Get("/api/audit/double-counting", s.doubleCounting)
	r.Put("/api/config/weights", s.setWeights)

	r.Post("/api/jobs/sweep", s.runSweep)
	r.Post("/api/jobs/recalc", s.runDrain)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("taskpulse_up 1\n"))
}

// actor identifies the requesting user; the auth layer in front of this
// service is expected to set the header.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-User-ID"); a != "" {
		return a
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResult maps an operation envelope to a status code: business
// failures are 422, successes 200.
func writeResult(w http.ResponseWriter, success bool, v any) {
	code := http.StatusOK
	if !success {
		code = http.StatusUnprocessableEntity
	}
	writeJSON(w, code, v)
}

type createUserReq struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", 400)
		return
	}
	if req.ID == "" {
		req.ID = "usr_" + uuid.NewString()
	}
	if err := s.store.CreateUser(r.Context(), req.ID, req.Name); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type createTaskReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	AssignedTo  []string   `json:"assigned_to"`
	DueDate     *time.Time `json:"due_date"`
	KRAID       string     `json:"kra_id"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.Create(r.Context(), taskops.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.Priority(req.Priority),
		AssignedTo:  req.AssignedTo,
		DueDate:     req.DueDate,
		KRAID:       req.KRAID,
		Actor:       actor(r),
	})
	writeResult(w, res.Success, res)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, t)
}

type updateStatusReq struct {
	To           string     `json:"to"`
	CompletedAt  *time.Time `json:"completed_at"`
	ResumeReason string     `json:"resume_reason"`
	ExtensionID  string     `json:"extension_id"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.UpdateStatus(r.Context(), taskops.UpdateStatusInput{
		TaskID:       chi.URLParam(r, "id"),
		To:           domain.Status(req.To),
		Actor:        actor(r),
		CompletedAt:  req.CompletedAt,
		ResumeReason: req.ResumeReason,
		ExtensionID:  req.ExtensionID,
	})
	writeResult(w, res.Success, res)
}

type reassignReq struct {
	AssignedTo []string `json:"assigned_to"`
}

func (s *Server) reassign(w http.ResponseWriter, r *http.Request) {
	var req reassignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.Reassign(r.Context(), chi.URLParam(r, "id"), req.AssignedTo, actor(r))
	writeResult(w, res.Success, res)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	res := s.tasks.Delete(r.Context(), chi.URLParam(r, "id"), actor(r), force)
	writeResult(w, res.Success, res)
}

type changePriorityReq struct {
	Priority string `json:"priority"`
	Reason   string `json:"reason"`
}

func (s *Server) changePriority(w http.ResponseWriter, r *http.Request) {
	var req changePriorityReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.ChangePriority(r.Context(), chi.URLParam(r, "id"), domain.Priority(req.Priority), req.Reason, actor(r))
	writeResult(w, res.Success, res)
}

type verifyReq struct {
	Outcome string `json:"outcome"`
}

func (s *Server) verifyTask(w http.ResponseWriter, r *http.Request) {
	var req verifyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.Verify(r.Context(), chi.URLParam(r, "id"), domain.VerificationStatus(req.Outcome), actor(r))
	writeResult(w, res.Success, res)
}

type requestExtensionReq struct {
	Reason           string    `json:"reason"`
	RequestedDueDate time.Time `json:"requested_due_date"`
}

func (s *Server) requestExtension(w http.ResponseWriter, r *http.Request) {
	var req requestExtensionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.RequestExtension(r.Context(), taskops.ExtensionInput{
		TaskID:           chi.URLParam(r, "id"),
		RequestedBy:      actor(r),
		Reason:           req.Reason,
		RequestedDueDate: req.RequestedDueDate,
	})
	writeResult(w, res.Success, res)
}

type decisionReq struct {
	Approve bool `json:"approve"`
}

func (s *Server) processExtension(w http.ResponseWriter, r *http.Request) {
	var req decisionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res := s.tasks.ProcessExtension(r.Context(), chi.URLParam(r, "id"), req.Approve, actor(r))
	writeResult(w, res.Success, res)
}

// period parses start/end query params, defaulting to the trailing 30
// days ending now.
func period(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}
	return start, end, nil
}

func (s *Server) userScore(w http.ResponseWriter, r *http.Request) {
	start, end, err := period(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	res, err := s.scores.CalculateUserScore(r.Context(), chi.URLParam(r, "id"), start, end)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) userScoreRolling(w http.ResponseWriter, r *http.Request) {
	res, err := s.scores.RollingAverages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) manualRecalc(w http.ResponseWriter, r *http.Request) {
	s.recalcs.Queue(r.Context(), chi.URLParam(r, "id"), domain.RecalcManual, "", actor(r))
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func (s *Server) doubleCounting(w http.ResponseWriter, r *http.Request) {
	start, end, err := period(r)
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	shared, err := s.scores.AuditDoubleCounting(r.Context(), start, end)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{"count": len(shared), "tasks": shared})
}

type weightsReq struct {
	Completion   int `json:"completion"`
	Timeliness   int `json:"timeliness"`
	Quality      int `json:"quality"`
	KRAAlignment int `json:"kra_alignment"`
}

func (s *Server) setWeights(w http.ResponseWriter, r *http.Request) {
	var req weightsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	weights := domain.ScoreWeights{
		Completion:   req.Completion,
		Timeliness:   req.Timeliness,
		Quality:      req.Quality,
		KRAAlignment: req.KRAAlignment,
	}
	if err := s.store.SetScoreWeights(r.Context(), weights); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, weights)
}

func (s *Server) runSweep(w http.ResponseWriter, r *http.Request) {
	res := s.tasks.MarkOverdueTasks(r.Context())
	writeResult(w, res.Success, res)
}

func (s *Server) runDrain(w http.ResponseWriter, r *http.Request) {
	size := 50
	if v := r.URL.Query().Get("batch"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	res := s.recalcs.ProcessQueue(r.Context(), size)
	writeResult(w, res.Success, res)
}
