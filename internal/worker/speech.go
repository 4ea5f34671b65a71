package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// HTTPTranscriber sends extracted audio to a SpeechKit-compatible
// short-audio recognition endpoint.
type HTTPTranscriber struct {
	endpoint   string
	apiKey     string
	folderID   string
	language   string
	sampleRate int
	httpClient *http.Client
}

// TranscriberOptions configures an HTTPTranscriber.
type TranscriberOptions struct {
	Endpoint   string
	APIKey     string
	FolderID   string
	Language   string
	SampleRate int
	Timeout    time.Duration
}

// NewHTTPTranscriber validates the options and builds the client.
func NewHTTPTranscriber(opts TranscriberOptions) (*HTTPTranscriber, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("speech endpoint is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("speech API key is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	language := opts.Language
	if language == "" {
		language = "auto"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &HTTPTranscriber{
		endpoint:   opts.Endpoint,
		apiKey:     opts.APIKey,
		folderID:   opts.FolderID,
		language:   language,
		sampleRate: sampleRate,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Transcribe posts the WAV audio and returns the recognized text. An empty
// recognition result is an error; transcription is mandatory and a silent
// recording must surface as a failed task, not empty notes.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	params := url.Values{}
	if t.folderID != "" {
		params.Set("folderId", t.folderID)
	}
	params.Set("lang", t.language)
	params.Set("format", "lpcm")
	params.Set("sampleRateHertz", strconv.Itoa(t.sampleRate))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint+"?"+params.Encode(), bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Api-Key "+t.apiKey)
	req.Header.Set("Content-Type", "audio/x-wav")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call speech service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return "", fmt.Errorf("read speech response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech service status %d: %s", resp.StatusCode, bodySnippet(body))
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode speech response: %w", err)
	}
	text := strings.TrimSpace(result.Result)
	if text == "" {
		return "", errors.New("no speech detected in audio")
	}
	return text, nil
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
