package models

import (
	"time"
)

// Task status lifecycle persisted in the blob store.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Terminal reports whether a status permits no further automatic transition.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Task is the durable record for one submitted lecture, the single source of
// truth read by the polling API and mutated by the worker pipeline.
type Task struct {
	TaskID      string `json:"task_id"`
	Title       string `json:"title"`
	VideoURL    string `json:"video_url"`
	Description string `json:"description,omitempty"`

	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	StatusMessage string `json:"status_message,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`

	Transcription string   `json:"transcription,omitempty"`
	TranscriptURL string   `json:"transcript_url,omitempty"`
	AudioURL      string   `json:"audio_url,omitempty"`
	NotesURL      string   `json:"notes_url,omitempty"`
	VideoDuration *float64 `json:"video_duration,omitempty"`

	// Version counts successful writes; the record store bumps it on every
	// update and uses it together with ETag-conditional PUTs to detect
	// concurrent writers.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update is a partial mutation merged into a Task by the record store.
// Nil fields are left untouched; non-nil empty strings clear the field.
type Update struct {
	Status        *string
	Progress      *int
	StatusMessage *string
	ErrorMessage  *string
	Transcription *string
	TranscriptURL *string
	AudioURL      *string
	NotesURL      *string
	VideoDuration *float64
}

// Apply merges the update into the task in place.
func (u Update) Apply(t *Task) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.StatusMessage != nil {
		t.StatusMessage = *u.StatusMessage
	}
	if u.ErrorMessage != nil {
		t.ErrorMessage = *u.ErrorMessage
	}
	if u.Transcription != nil {
		t.Transcription = *u.Transcription
	}
	if u.TranscriptURL != nil {
		t.TranscriptURL = *u.TranscriptURL
	}
	if u.AudioURL != nil {
		t.AudioURL = *u.AudioURL
	}
	if u.NotesURL != nil {
		t.NotesURL = *u.NotesURL
	}
	if u.VideoDuration != nil {
		t.VideoDuration = u.VideoDuration
	}
}

// String and Int are pointer helpers for building partial updates.
func String(s string) *string { return &s }

func Int(i int) *int { return &i }
