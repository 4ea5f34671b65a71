package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"lecture-notes-service/internal/models"
)

// GeminiSummarizer builds structured lecture notes from a transcript via the
// Gemini API.
type GeminiSummarizer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewGeminiSummarizer creates the API client. The caller decides whether a
// missing key means "run without a summarizer" or a configuration error.
func NewGeminiSummarizer(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiSummarizer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiSummarizer{client: client, model: model, logger: logger}, nil
}

// Summarize asks the model for a concise structured digest of the lecture.
func (g *GeminiSummarizer) Summarize(ctx context.Context, title, transcript string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", errors.New("transcript is empty")
	}

	prompt := fmt.Sprintf(`You are an assistant that produces concise, structured lecture notes.

Write a digest of the following lecture transcript titled %q.
Use a short summary paragraph, then key points as a bullet list, then
definitions of important terms, then a one-paragraph conclusion.

Transcript:
%s`, title, transcript)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini call: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("empty summary generated")
	}
	g.logger.DebugContext(ctx, "summary generated", "length", len(text))
	return text, nil
}

// fallbackNotes renders a minimally structured notes document straight from
// the transcript, used when no summarizer is configured or the call failed.
func fallbackNotes(title, transcript string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LECTURE NOTES: %s\n", title)
	fmt.Fprintf(&b, "Generated on: %s\n", now.UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("=========================================\n\n")
	b.WriteString("SUMMARY:\n")
	b.WriteString(truncate(transcript, 500))
	b.WriteString("\n\nFULL TRANSCRIPT:\n")
	b.WriteString(transcript)
	b.WriteString("\n")
	return b.String()
}

// TranscriptDocument frames the raw transcript with submission metadata for
// the stored text artifact.
func TranscriptDocument(task models.Task, transcript string, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lecture: %s\n\n", task.Title)
	fmt.Fprintf(&b, "Date: %s\n\n", now.UTC().Format("2006-01-02 15:04:05"))
	if task.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n\n", task.Description)
	}
	fmt.Fprintf(&b, "Video URL: %s\n\n", task.VideoURL)
	b.WriteString("--- TRANSCRIPTION ---\n\n")
	b.WriteString(transcript)
	b.WriteString("\n\n--- END OF TRANSCRIPTION ---\n")
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
