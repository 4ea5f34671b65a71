package tasks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lecture-notes-service/internal/blob"
	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/models"
	"lecture-notes-service/internal/queue"
	"lecture-notes-service/internal/store"
)

func newTestService(t *testing.T, validator *LinkValidator) (*Service, *queue.RedisQueue) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewRedisQueueWithClient(client, config.Config{VisibilityTimeout: time.Minute})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(blob.NewMemoryStore(), logger, 3)
	return NewService(st, q, validator, logger), q
}

func TestSubmitCreatesRecordAndEnqueues(t *testing.T) {
	ctx := context.Background()
	svc, q := newTestService(t, nil)

	task, err := svc.Submit(ctx, SubmitRequest{
		Title:       "Operating Systems L5",
		VideoURL:    "https://example.com/os-l5.mp4",
		Description: "Scheduling",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)
	assert.Equal(t, models.StatusProcessing, task.Status)
	assert.Equal(t, 10, task.Progress)
	assert.Equal(t, "Queued for processing", task.StatusMessage)

	stored, err := svc.Get(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, stored.TaskID)

	item, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, task.TaskID, item.TaskID)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	ctx := context.Background()
	svc, q := newTestService(t, nil)

	cases := []SubmitRequest{
		{Title: "", VideoURL: "https://example.com/a.mp4"},
		{Title: "Lecture", VideoURL: ""},
		{Title: "   ", VideoURL: "  "},
	}
	for _, req := range cases {
		_, err := svc.Submit(ctx, req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "please provide both title and video URL", verr.Reason)
	}

	// Rejected submissions must not leave records or queue messages behind.
	item, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Nil(t, item)
	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmitDuplicatesCreateDistinctTasks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	req := SubmitRequest{Title: "Same", VideoURL: "https://example.com/same.mp4"}
	first, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	second, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}

func TestKnownIDsSortedAndLimited(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	for _, title := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		_, err := svc.Submit(ctx, SubmitRequest{Title: title, VideoURL: "https://example.com/" + title + ".mp4"})
		require.NoError(t, err)
	}

	ids := svc.KnownIDs(ctx, 5)
	assert.Len(t, ids, 5)
	assert.IsIncreasing(t, ids)
}

func TestDeleteUnknownTask(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	assert.ErrorIs(t, svc.Delete(ctx, "nope"), store.ErrNotFound)
}

func TestLinkValidator(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp4":
			w.WriteHeader(http.StatusOK)
		case "/stream":
			w.Header().Set("Content-Type", "video/mp4")
			w.WriteHeader(http.StatusOK)
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	host, _ := url.Parse(srv.URL)

	v := NewLinkValidator(nil, 5*time.Second)

	assert.NoError(t, v.Validate(ctx, srv.URL+"/ok.mp4"))
	assert.NoError(t, v.Validate(ctx, srv.URL+"/stream"))

	var verr *ValidationError
	require.ErrorAs(t, v.Validate(ctx, srv.URL+"/page"), &verr)
	assert.Contains(t, verr.Reason, "does not appear to be a video")

	require.ErrorAs(t, v.Validate(ctx, srv.URL+"/missing.mp4"), &verr)
	assert.Contains(t, verr.Reason, "status 404")

	require.ErrorAs(t, v.Validate(ctx, "ftp://example.com/a.mp4"), &verr)
	assert.Contains(t, verr.Reason, "scheme")

	restricted := NewLinkValidator([]string{"example.com"}, 5*time.Second)
	require.ErrorAs(t, restricted.Validate(ctx, srv.URL+"/ok.mp4"), &verr)
	assert.Contains(t, verr.Reason, host.Host)
}

func TestSubmitWithValidator(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, _ := newTestService(t, NewLinkValidator(nil, 5*time.Second))

	_, err := svc.Submit(ctx, SubmitRequest{Title: "ok", VideoURL: srv.URL + "/lecture.mp4"})
	assert.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitRequest{Title: "bad", VideoURL: "not a url"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
