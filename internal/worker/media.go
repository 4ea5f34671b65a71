package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"lecture-notes-service/internal/config"
)

// AudioFiles holds the two audio renditions extracted from one video: the
// 16kHz mono WAV fed to speech recognition and the MP3 stored as an artifact.
type AudioFiles struct {
	WAVPath string
	MP3Path string
}

// FFmpegProcessor implements MediaProcessor by downloading over HTTP and
// shelling out to ffmpeg/ffprobe for transcoding and duration probing.
type FFmpegProcessor struct {
	httpClient  *http.Client
	ffmpegPath  string
	ffprobePath string
	maxBytes    int64
	sampleRate  int
	logger      *slog.Logger
}

// NewFFmpegProcessor builds a processor from config.
func NewFFmpegProcessor(cfg config.Config, logger *slog.Logger) *FFmpegProcessor {
	timeout := cfg.DownloadTimeout
	maxBytes := cfg.MaxVideoBytes
	if maxBytes == 0 {
		maxBytes = 2 * 1024 * 1024 * 1024
	}
	sampleRate := cfg.SpeechSampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	return &FFmpegProcessor{
		httpClient:  &http.Client{Timeout: timeout},
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		maxBytes:    maxBytes,
		sampleRate:  sampleRate,
		logger:      logger,
	}
}

// Fetch streams the source video into the work directory.
func (f *FFmpegProcessor) Fetch(ctx context.Context, videoURL, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "lecture-notes-service/1.0")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch video: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "video") {
		f.logger.WarnContext(ctx, "content type is not video", "content_type", ct, "url", videoURL)
	}

	videoPath := filepath.Join(dir, "source.mp4")
	out, err := os.Create(videoPath)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("write video file: %w", err)
	}
	if written > f.maxBytes {
		return "", fmt.Errorf("video too large (>%d bytes)", f.maxBytes)
	}
	if written == 0 {
		return "", errors.New("downloaded video file is empty")
	}
	return videoPath, nil
}

// ExtractAudio produces the WAV rendition for speech recognition and an MP3
// artifact from the same source.
func (f *FFmpegProcessor) ExtractAudio(ctx context.Context, videoPath, dir string) (AudioFiles, error) {
	wavPath := filepath.Join(dir, "audio.wav")
	if err := f.runFFmpeg(ctx,
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(f.sampleRate),
		"-ac", "1",
		"-y", wavPath,
	); err != nil {
		return AudioFiles{}, err
	}

	mp3Path := filepath.Join(dir, "audio.mp3")
	if err := f.runFFmpeg(ctx,
		"-i", videoPath,
		"-vn",
		"-codec:a", "libmp3lame",
		"-qscale:a", "4",
		"-y", mp3Path,
	); err != nil {
		return AudioFiles{}, err
	}

	for _, path := range []string{wavPath, mp3Path} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			return AudioFiles{}, fmt.Errorf("no audio track extracted to %s", filepath.Base(path))
		}
	}
	return AudioFiles{WAVPath: wavPath, MP3Path: mp3Path}, nil
}

// Duration probes the video length in seconds. Failures are swallowed; the
// duration is enrichment, not a pipeline stage.
func (f *FFmpegProcessor) Duration(ctx context.Context, videoPath string) *float64 {
	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		f.logger.WarnContext(ctx, "duration probe failed", "error", err)
		return nil
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return nil
	}
	return &seconds
}

func (f *FFmpegProcessor) runFFmpeg(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderrTail(stderr.String()))
	}
	return nil
}

// stderrTail keeps error messages readable; ffmpeg prints its banner and
// progress before the part that matters.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
