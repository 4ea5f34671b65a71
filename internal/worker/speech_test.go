package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFxxxx"), 0o644))
	return path
}

func TestTranscribe(t *testing.T) {
	var gotAuth, gotLang, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLang = r.URL.Query().Get("lang")
		gotFormat = r.URL.Query().Get("format")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":"today we cover b-trees"}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberOptions{
		Endpoint: srv.URL,
		APIKey:   "key123",
		Language: "ru-RU",
	})
	require.NoError(t, err)

	text, err := tr.Transcribe(context.Background(), writeWAV(t))
	require.NoError(t, err)
	assert.Equal(t, "today we cover b-trees", text)
	assert.Equal(t, "Api-Key key123", gotAuth)
	assert.Equal(t, "ru-RU", gotLang)
	assert.Equal(t, "lpcm", gotFormat)
}

func TestTranscribeEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":""}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberOptions{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), writeWAV(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no speech detected")
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberOptions{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = tr.Transcribe(context.Background(), writeWAV(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestNewHTTPTranscriberValidation(t *testing.T) {
	_, err := NewHTTPTranscriber(TranscriberOptions{APIKey: "k"})
	assert.Error(t, err)

	_, err = NewHTTPTranscriber(TranscriberOptions{Endpoint: "https://stt.example"})
	assert.Error(t, err)
}
