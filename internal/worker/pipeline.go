// Package worker drives the processing pipeline: it leases work items from
// the queue, advances the task record through the ordered stages, and acks
// the item only after the record reaches completed. Failed runs leave the
// item leased so it is redelivered after the visibility window.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"lecture-notes-service/internal/blob"
	"lecture-notes-service/internal/config"
	"lecture-notes-service/internal/models"
	"lecture-notes-service/internal/queue"
	"lecture-notes-service/internal/store"
	"lecture-notes-service/internal/telemetry"
)

// Stage names, in pipeline order.
const (
	StageDownload   = "download"
	StageTranscode  = "extract_audio"
	StageTranscribe = "transcribe"
	StageSynthesize = "synthesize"
	StageRender     = "render"
)

// StageFailure reports which pipeline stage failed and why. The orchestrator
// inspects it instead of letting stage errors propagate unchecked, so the
// retry/redelivery decision stays in one place.
type StageFailure struct {
	Stage string
	Err   error
}

func (f *StageFailure) Error() string { return fmt.Sprintf("stage %s: %v", f.Stage, f.Err) }

func (f *StageFailure) Unwrap() error { return f.Err }

// MediaProcessor covers the local media stages: fetching the source video and
// extracting its audio track.
type MediaProcessor interface {
	Fetch(ctx context.Context, videoURL, dir string) (string, error)
	ExtractAudio(ctx context.Context, videoPath, dir string) (AudioFiles, error)
	// Duration is best-effort enrichment; nil means unknown.
	Duration(ctx context.Context, videoPath string) *float64
}

// Transcriber converts an extracted audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// Summarizer turns a raw transcript into structured notes text.
type Summarizer interface {
	Summarize(ctx context.Context, title, transcript string) (string, error)
}

// Pipeline consumes work items one at a time and runs the stage sequence
// against the referenced task record.
type Pipeline struct {
	cfg         config.Config
	store       *store.RecordStore
	blob        blob.Store
	queue       *queue.RedisQueue
	media       MediaProcessor
	transcriber Transcriber
	summarizer  Summarizer
	logger      *slog.Logger
	now         func() time.Time
}

// New wires the pipeline. summarizer may be nil; the synthesize stage then
// always falls back to the plain transcript rendition.
func New(cfg config.Config, st *store.RecordStore, b blob.Store, q *queue.RedisQueue,
	media MediaProcessor, transcriber Transcriber, summarizer Summarizer, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		store:       st,
		blob:        b,
		queue:       q,
		media:       media,
		transcriber: transcriber,
		summarizer:  summarizer,
		logger:      logger,
		now:         time.Now,
	}
}

// Run polls the queue until context cancellation. Items are processed
// strictly sequentially; a failed task never aborts the loop.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := p.queue.RequeueExpired(ctx, p.now(), 100); err == nil && len(reclaimed) > 0 {
			telemetry.LeasesReclaimed.Add(float64(len(reclaimed)))
			p.logger.InfoContext(ctx, "reclaimed expired leases", "task_ids", reclaimed)
		}
		if depth, err := p.queue.ReadyDepth(ctx); err == nil {
			telemetry.QueueDepthGauge.Set(float64(depth))
		}

		item, err := p.queue.Receive(ctx)
		if err != nil {
			p.logger.WarnContext(ctx, "queue receive failed", "error", err)
			p.sleep(ctx)
			continue
		}
		if item == nil {
			p.sleep(ctx)
			continue
		}

		telemetry.InFlightGauge.Inc()
		p.Handle(ctx, item)
		telemetry.InFlightGauge.Dec()
	}
}

// Handle runs one received work item end to end. On success the item is
// deleted from the queue; on failure it is left leased for redelivery, so
// this method must stay safe to re-run against the same task id.
func (p *Pipeline) Handle(ctx context.Context, item *queue.Item) {
	task, err := p.store.Get(ctx, item.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Record was deleted while the item sat in the queue.
			p.logger.WarnContext(ctx, "dropping work item for missing task", "task_id", item.TaskID)
			_ = p.queue.Ack(ctx, item.TaskID)
			return
		}
		p.logger.ErrorContext(ctx, "cannot load task record, leaving item for redelivery",
			"task_id", item.TaskID, "error", err)
		return
	}

	p.logger.InfoContext(ctx, "processing task",
		"task_id", task.TaskID, "title", task.Title, "receive_count", item.ReceiveCount)

	if err := p.Process(ctx, task); err != nil {
		telemetry.PipelineFailed.Inc()
		p.logger.ErrorContext(ctx, "task processing failed, item left for redelivery",
			"task_id", task.TaskID, "error", err)
		return
	}

	if err := p.queue.Ack(ctx, task.TaskID); err != nil {
		// The run succeeded; a redelivery will redo the work idempotently.
		p.logger.WarnContext(ctx, "ack failed after successful run", "task_id", task.TaskID, "error", err)
	}
	telemetry.PipelineCompleted.Inc()
	p.logger.InfoContext(ctx, "task completed", "task_id", task.TaskID)
}

// Process executes the stage sequence for one task. Every artifact write goes
// to a key derived from the task id, so re-running overwrites rather than
// duplicates. A re-run also resets a previously failed record back to
// processing at the first checkpoint.
func (p *Pipeline) Process(ctx context.Context, task models.Task) error {
	workDir, err := os.MkdirTemp("", "lecture-"+task.TaskID+"-")
	if err != nil {
		return p.fail(ctx, task.TaskID, &StageFailure{Stage: StageDownload, Err: err})
	}
	defer os.RemoveAll(workDir)

	// Stage 1: acquire the source video.
	if err := p.checkpoint(ctx, task.TaskID, 10, "Downloading video..."); err != nil {
		return err
	}
	stop := stageTimer(StageDownload)
	videoPath, err := p.media.Fetch(ctx, task.VideoURL, workDir)
	stop()
	if err != nil {
		return p.fail(ctx, task.TaskID, &StageFailure{Stage: StageDownload,
			Err: fmt.Errorf("failed to download video: %w", err)})
	}

	// Stage 2: extract the audio track.
	if err := p.checkpoint(ctx, task.TaskID, 30, "Extracting audio..."); err != nil {
		return err
	}
	stop = stageTimer(StageTranscode)
	audio, err := p.media.ExtractAudio(ctx, videoPath, workDir)
	stop()
	if err != nil {
		return p.fail(ctx, task.TaskID, &StageFailure{Stage: StageTranscode,
			Err: fmt.Errorf("failed to extract audio: %w", err)})
	}

	// Stage 3: speech to text. Mandatory; never mocked on failure.
	if err := p.checkpoint(ctx, task.TaskID, 50, "Transcribing audio..."); err != nil {
		return err
	}
	stop = stageTimer(StageTranscribe)
	transcript, err := p.transcriber.Transcribe(ctx, audio.WAVPath)
	stop()
	if err != nil {
		return p.fail(ctx, task.TaskID, &StageFailure{Stage: StageTranscribe,
			Err: fmt.Errorf("transcription failed: %w", err)})
	}

	// Stage 4: build notes. Summarizer failure falls back to a minimally
	// structured transcript instead of aborting the run.
	if err := p.checkpoint(ctx, task.TaskID, 80, "Generating notes..."); err != nil {
		return err
	}
	stop = stageTimer(StageSynthesize)
	notes := p.synthesize(ctx, task.Title, transcript)
	stop()

	duration := p.media.Duration(ctx, videoPath)

	// Stage 5: render the document and persist every artifact.
	if err := p.checkpoint(ctx, task.TaskID, 85, "Saving results..."); err != nil {
		return err
	}
	stop = stageTimer(StageRender)
	err = p.persistArtifacts(ctx, task, transcript, notes, audio, duration)
	stop()
	if err != nil {
		return p.fail(ctx, task.TaskID, &StageFailure{Stage: StageRender, Err: err})
	}
	return nil
}

func (p *Pipeline) synthesize(ctx context.Context, title, transcript string) string {
	if p.summarizer != nil {
		summary, err := p.summarizer.Summarize(ctx, title, transcript)
		if err == nil {
			return summary
		}
		p.logger.WarnContext(ctx, "summarizer failed, falling back to plain transcript notes", "error", err)
	}
	return fallbackNotes(title, transcript, p.now())
}

func (p *Pipeline) persistArtifacts(ctx context.Context, task models.Task,
	transcript, notes string, audio AudioFiles, duration *float64) error {

	pdfBytes, err := RenderNotesPDF(task.Title, notes, transcript)
	if err != nil {
		return fmt.Errorf("failed to render notes document: %w", err)
	}

	transcriptKey := store.TranscriptKey(task.TaskID)
	doc := TranscriptDocument(task, transcript, p.now())
	if err := p.blob.Put(ctx, transcriptKey, []byte(doc), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}

	audioKey := store.AudioKey(task.TaskID)
	mp3Bytes, err := os.ReadFile(audio.MP3Path)
	if err != nil {
		return fmt.Errorf("failed to read extracted audio: %w", err)
	}
	if err := p.blob.Put(ctx, audioKey, mp3Bytes, "audio/mpeg"); err != nil {
		return fmt.Errorf("failed to store audio: %w", err)
	}

	notesKey := store.NotesKey(task.TaskID)
	if err := p.blob.Put(ctx, notesKey, pdfBytes, "application/pdf"); err != nil {
		return fmt.Errorf("failed to store notes: %w", err)
	}

	_, err = p.store.Update(ctx, task.TaskID, models.Update{
		Status:        models.String(models.StatusCompleted),
		Progress:      models.Int(100),
		StatusMessage: models.String("Processing completed"),
		ErrorMessage:  models.String(""),
		Transcription: models.String(transcript),
		TranscriptURL: models.String(p.blob.PublicURL(transcriptKey)),
		AudioURL:      models.String(p.blob.PublicURL(audioKey)),
		NotesURL:      models.String(p.blob.PublicURL(notesKey)),
		VideoDuration: duration,
	})
	if err != nil {
		return fmt.Errorf("failed to record completion: %w", err)
	}
	return nil
}

// checkpoint persists stage progress so a crash mid-pipeline leaves an
// inspectable record instead of silent staleness.
func (p *Pipeline) checkpoint(ctx context.Context, taskID string, progress int, message string) error {
	_, err := p.store.Update(ctx, taskID, models.Update{
		Status:        models.String(models.StatusProcessing),
		Progress:      models.Int(progress),
		StatusMessage: models.String(message),
		ErrorMessage:  models.String(""),
	})
	if err != nil {
		return fmt.Errorf("checkpoint %d%%: %w", progress, err)
	}
	return nil
}

// fail marks the record failed with a descriptive message and returns the
// stage failure so the caller leaves the work item unacknowledged.
func (p *Pipeline) fail(ctx context.Context, taskID string, failure *StageFailure) error {
	_, err := p.store.Update(ctx, taskID, models.Update{
		Status:        models.String(models.StatusFailed),
		Progress:      models.Int(0),
		StatusMessage: models.String("Processing failed"),
		ErrorMessage:  models.String(failure.Err.Error()),
	})
	if err != nil {
		p.logger.ErrorContext(ctx, "could not mark task failed",
			"task_id", taskID, "stage", failure.Stage, "error", err)
	}
	return failure
}

func (p *Pipeline) sleep(ctx context.Context) {
	interval := p.cfg.WorkerPollInterval
	if interval == 0 {
		interval = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

func stageTimer(stage string) func() {
	start := time.Now()
	return func() {
		telemetry.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}
