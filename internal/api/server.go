package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/models"
	"lecture-notes-service/internal/ratelimit"
	"lecture-notes-service/internal/store"
	"lecture-notes-service/internal/tasks"
	"lecture-notes-service/internal/telemetry"
)

// Server wires HTTP handlers for submission, polling, and artifact downloads.
type Server struct {
	cfg     config.Config
	service *tasks.Service
	limiter *ratelimit.TokenBucket
	logger  *slog.Logger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(cfg config.Config, service *tasks.Service, limiter *ratelimit.TokenBucket, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Post("/api/submit", s.handleSubmit)
	r.Get("/api/tasks", s.handleListTasks)
	r.Get("/api/status", s.handleStatusQuery)
	r.Get("/api/status/{taskID}", s.handleStatus)
	r.Delete("/api/tasks/{taskID}", s.handleDelete)

	r.Get("/download/{taskID}/transcript", s.handleDownloadTranscript)
	r.Get("/download/{taskID}/audio", s.handleDownloadAudio)
	r.Get("/download/{taskID}/notes", s.handleDownloadNotes)

	return r
}

type submitResponse struct {
	TaskID  string      `json:"task_id"`
	Task    models.Task `json:"task"`
	Message string      `json:"message"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req tasks.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), "rl:"+clientHost(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	task, err := s.service.Submit(r.Context(), req)
	if err != nil {
		var verr *tasks.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Reason)
			return
		}
		if errors.Is(err, tasks.ErrEnqueueFailed) {
			writeError(w, http.StatusInternalServerError, "task saved but failed to queue for processing")
			return
		}
		s.logger.ErrorContext(r.Context(), "submit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save task")
		return
	}

	telemetry.SubmittedCounter.Inc()
	writeJSON(w, http.StatusAccepted, submitResponse{
		TaskID:  task.TaskID,
		Task:    task,
		Message: "Lecture added to queue successfully",
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	all, err := s.service.List(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list tasks failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleStatusQuery(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "task_id query parameter is required",
			"example": "/api/status?task_id=<your-task-id>",
		})
		return
	}
	s.lookupStatus(w, r, taskID)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.lookupStatus(w, r, chi.URLParam(r, "taskID"))
}

func (s *Server) lookupStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	task, err := s.service.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error":           "task not found",
				"task_id":         taskID,
				"available_tasks": s.service.KnownIDs(r.Context(), 5),
			})
			return
		}
		s.logger.ErrorContext(r.Context(), "status lookup failed", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load task")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.service.Delete(r.Context(), taskID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "delete failed", "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "task_id": taskID})
}

func (s *Server) handleDownloadTranscript(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadForDownload(w, r)
	if !ok {
		return
	}
	if task.Transcription == "" {
		writeError(w, http.StatusNotFound, "transcript is not available yet")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", task.TaskID+"_transcription.txt"))
	_, _ = w.Write([]byte(task.Transcription))
}

func (s *Server) handleDownloadAudio(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadForDownload(w, r)
	if !ok {
		return
	}
	if task.AudioURL == "" {
		writeError(w, http.StatusNotFound, "audio is not available yet")
		return
	}
	http.Redirect(w, r, task.AudioURL, http.StatusFound)
}

func (s *Server) handleDownloadNotes(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadForDownload(w, r)
	if !ok {
		return
	}
	if task.NotesURL == "" {
		writeError(w, http.StatusNotFound, "notes are not available yet")
		return
	}
	http.Redirect(w, r, task.NotesURL, http.StatusFound)
}

// loadForDownload distinguishes "task doesn't exist" from "task exists but
// the requested artifact hasn't been produced".
func (s *Server) loadForDownload(w http.ResponseWriter, r *http.Request) (models.Task, bool) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.service.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
		} else {
			s.logger.ErrorContext(r.Context(), "download lookup failed", "task_id", taskID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load task")
		}
		return models.Task{}, false
	}
	return task, true
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
