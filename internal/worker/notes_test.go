package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-notes-service/internal/models"
)

func TestFallbackNotes(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	transcript := strings.Repeat("lecture content ", 60)

	notes := fallbackNotes("Compilers L1", transcript, now)

	assert.Contains(t, notes, "LECTURE NOTES: Compilers L1")
	assert.Contains(t, notes, "2026-03-14 09:30:00")
	assert.Contains(t, notes, "SUMMARY:")
	assert.Contains(t, notes, "FULL TRANSCRIPT:")
	// The summary section is a bounded excerpt, the transcript is intact.
	assert.Contains(t, notes, transcript)
}

func TestFallbackNotesShortTranscript(t *testing.T) {
	notes := fallbackNotes("Short", "tiny", time.Now())
	assert.Contains(t, notes, "tiny")
	assert.NotContains(t, notes, "...")
}

func TestTranscriptDocument(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	task := models.Task{
		TaskID:      "t1",
		Title:       "Networks L7",
		VideoURL:    "https://example.com/net-l7.mp4",
		Description: "Congestion control",
	}

	doc := TranscriptDocument(task, "slow start begins", now)

	assert.Contains(t, doc, "Lecture: Networks L7")
	assert.Contains(t, doc, "Description: Congestion control")
	assert.Contains(t, doc, "Video URL: https://example.com/net-l7.mp4")
	assert.Contains(t, doc, "--- TRANSCRIPTION ---")
	assert.Contains(t, doc, "slow start begins")
	assert.Contains(t, doc, "--- END OF TRANSCRIPTION ---")
}

func TestTranscriptDocumentOmitsEmptyDescription(t *testing.T) {
	doc := TranscriptDocument(models.Task{Title: "x", VideoURL: "https://e.com/x.mp4"}, "text", time.Now())
	assert.NotContains(t, doc, "Description:")
}

func TestRenderNotesPDF(t *testing.T) {
	pdf, err := RenderNotesPDF("Algorithms L2", "- sorting\n- searching", strings.Repeat("word ", 1000))
	require.NoError(t, err)
	require.Greater(t, len(pdf), 4)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestRenderNotesPDFUnicode(t *testing.T) {
	pdf, err := RenderNotesPDF("Лекция по БД", "заметки", "текст лекции")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestChunkText(t *testing.T) {
	assert.Nil(t, chunkText("", 10))
	assert.Equal(t, []string{"abc"}, chunkText("abc", 10))

	chunks := chunkText(strings.Repeat("a", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, len(chunks[0]))
	assert.Equal(t, 5, len(chunks[2]))
}
