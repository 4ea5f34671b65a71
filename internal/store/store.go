// Package store persists task records as JSON documents in the blob store,
// one object per task under the tasks/ prefix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lecture-notes-service/internal/blob"
	"lecture-notes-service/internal/models"
)

// ErrNotFound indicates no record exists for the task id.
var ErrNotFound = errors.New("task not found")

const (
	taskPrefix       = "tasks/"
	transcriptPrefix = "transcriptions/"
	audioPrefix      = "audio/"
	notesPrefix      = "notes/"
)

// TaskKey returns the record object key for a task id.
func TaskKey(taskID string) string { return taskPrefix + taskID + ".json" }

// TranscriptKey returns the transcript artifact key for a task id.
func TranscriptKey(taskID string) string { return transcriptPrefix + taskID + ".txt" }

// AudioKey returns the extracted-audio artifact key for a task id.
func AudioKey(taskID string) string { return audioPrefix + taskID + ".mp3" }

// NotesKey returns the rendered-notes artifact key for a task id.
func NotesKey(taskID string) string { return notesPrefix + taskID + ".pdf" }

// RecordStore reads and writes task records. Updates are read-merge-write
// guarded by an ETag-conditional PUT: a lost race is retried a bounded number
// of times against the fresh record, so concurrent writers interleave whole
// updates instead of silently dropping one.
type RecordStore struct {
	blob    blob.Store
	logger  *slog.Logger
	retries int
	now     func() time.Time
}

// New builds a record store on top of the given blob store.
func New(b blob.Store, logger *slog.Logger, updateRetries int) *RecordStore {
	if updateRetries < 1 {
		updateRetries = 3
	}
	return &RecordStore{
		blob:    b,
		logger:  logger,
		retries: updateRetries,
		now:     time.Now,
	}
}

// Create writes a brand-new record. The caller owns task_id uniqueness; no
// dedup is performed here.
func (s *RecordStore) Create(ctx context.Context, task models.Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}
	if err := s.blob.Put(ctx, TaskKey(task.TaskID), body, "application/json"); err != nil {
		return fmt.Errorf("create task %s: %w", task.TaskID, err)
	}
	return nil
}

// Get fetches one record.
func (s *RecordStore) Get(ctx context.Context, taskID string) (models.Task, error) {
	body, _, err := s.blob.Get(ctx, TaskKey(taskID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
		}
		return models.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
	}
	var task models.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return models.Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
	}
	return task, nil
}

// ListAll scans every record under tasks/. Unreadable records are skipped with
// a warning rather than failing the whole scan.
func (s *RecordStore) ListAll(ctx context.Context) (map[string]models.Task, error) {
	keys, err := s.blob.ListKeys(ctx, taskPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	tasks := make(map[string]models.Task, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		body, _, err := s.blob.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unreadable task record", "key", key, "error", err)
			continue
		}
		var task models.Task
		if err := json.Unmarshal(body, &task); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed task record", "key", key, "error", err)
			continue
		}
		tasks[task.TaskID] = task
	}
	return tasks, nil
}

// ListIDs returns the known task ids without decoding record bodies.
func (s *RecordStore) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := s.blob.ListKeys(ctx, taskPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimSuffix(strings.TrimPrefix(key, taskPrefix), ".json")
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Update merges the partial fields into the current record and writes it
// back, bumping the version. The conditional PUT detects a concurrent writer;
// on conflict the merge is replayed against the fresh record.
func (s *RecordStore) Update(ctx context.Context, taskID string, update models.Update) (models.Task, error) {
	key := TaskKey(taskID)
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		body, etag, err := s.blob.Get(ctx, key)
		if err != nil {
			if errors.Is(err, blob.ErrNotFound) {
				return models.Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
			}
			return models.Task{}, fmt.Errorf("get task %s: %w", taskID, err)
		}
		var task models.Task
		if err := json.Unmarshal(body, &task); err != nil {
			return models.Task{}, fmt.Errorf("decode task %s: %w", taskID, err)
		}

		update.Apply(&task)
		task.Version++
		task.UpdatedAt = s.now().UTC()

		updated, err := json.Marshal(task)
		if err != nil {
			return models.Task{}, fmt.Errorf("marshal task %s: %w", taskID, err)
		}
		err = s.blob.PutIfMatch(ctx, key, updated, "application/json", etag)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, blob.ErrPreconditionFailed) {
			return models.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
		}
		lastErr = err
		s.logger.WarnContext(ctx, "task update lost a write race, retrying",
			"task_id", taskID, "attempt", attempt+1)
	}
	return models.Task{}, fmt.Errorf("update task %s: too many write conflicts: %w", taskID, lastErr)
}

// Delete removes the record and all derived artifact keys. Missing artifacts
// are expected for incomplete tasks and are not errors.
func (s *RecordStore) Delete(ctx context.Context, taskID string) error {
	if _, err := s.Get(ctx, taskID); err != nil {
		return err
	}
	for _, key := range []string{
		TaskKey(taskID),
		TranscriptKey(taskID),
		AudioKey(taskID),
		NotesKey(taskID),
	} {
		if err := s.blob.Delete(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "best-effort delete failed", "key", key, "error", err)
		}
	}
	return nil
}
