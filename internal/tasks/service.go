// Package tasks holds the producer side of the pipeline: submission with
// validation and enqueue, plus the read-only status/query projection used by
// the polling client.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"lecture-notes-service/internal/models"
	"lecture-notes-service/internal/queue"
	"lecture-notes-service/internal/store"
)

// ValidationError rejects a submission before any side effect happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ErrEnqueueFailed wraps a queue failure that happened after the record was
// persisted. The record is left in processing with nothing to advance it, so
// callers should surface this loudly rather than pretend the task is live.
var ErrEnqueueFailed = errors.New("task saved but failed to queue for processing")

// SubmitRequest carries the client-provided submission fields.
type SubmitRequest struct {
	Title       string `json:"title"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description"`
}

// Service implements submission and status lookups over the record store and
// work queue.
type Service struct {
	store     *store.RecordStore
	queue     *queue.RedisQueue
	validator *LinkValidator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the submission/status service. validator may be nil to
// skip link reachability checks.
func NewService(st *store.RecordStore, q *queue.RedisQueue, validator *LinkValidator, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		queue:     q,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// Submit validates the request, persists a fresh record, and enqueues a work
// item referencing it. Duplicate submissions create duplicate tasks; there is
// no idempotency key.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (models.Task, error) {
	title := strings.TrimSpace(req.Title)
	videoURL := strings.TrimSpace(req.VideoURL)
	if title == "" || videoURL == "" {
		return models.Task{}, &ValidationError{Reason: "please provide both title and video URL"}
	}
	if s.validator != nil {
		if err := s.validator.Validate(ctx, videoURL); err != nil {
			return models.Task{}, err
		}
	}

	now := s.now().UTC()
	task := models.Task{
		TaskID:        uuid.New().String(),
		Title:         title,
		VideoURL:      videoURL,
		Description:   strings.TrimSpace(req.Description),
		Status:        models.StatusProcessing,
		Progress:      10,
		StatusMessage: "Queued for processing",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.store.Create(ctx, task); err != nil {
		return models.Task{}, fmt.Errorf("persist task: %w", err)
	}
	if err := s.queue.Enqueue(ctx, task.TaskID); err != nil {
		s.logger.ErrorContext(ctx, "enqueue failed after record was persisted",
			"task_id", task.TaskID, "error", err)
		return models.Task{}, fmt.Errorf("%w: %s", ErrEnqueueFailed, task.TaskID)
	}

	s.logger.InfoContext(ctx, "task submitted", "task_id", task.TaskID, "title", title)
	return task, nil
}

// Get returns one record or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, taskID string) (models.Task, error) {
	return s.store.Get(ctx, taskID)
}

// List returns every record keyed by task id for the polling UI.
func (s *Service) List(ctx context.Context) (map[string]models.Task, error) {
	return s.store.ListAll(ctx)
}

// KnownIDs returns up to limit task ids, for not-found debuggability.
func (s *Service) KnownIDs(ctx context.Context, limit int) []string {
	ids, err := s.store.ListIDs(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "listing task ids failed", "error", err)
		return nil
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// Delete removes the record and its artifacts; unknown ids report
// store.ErrNotFound.
func (s *Service) Delete(ctx context.Context, taskID string) error {
	if err := s.store.Delete(ctx, taskID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "task deleted", "task_id", taskID)
	return nil
}
