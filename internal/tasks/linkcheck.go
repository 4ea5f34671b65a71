package tasks

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

// LinkValidator checks that a submitted link points at a reachable video
// resource before a record or queue message is created.
type LinkValidator struct {
	httpClient   *http.Client
	allowedHosts []string
}

// NewLinkValidator builds a validator. allowedHosts restricts submissions to
// matching host suffixes; empty allows any host.
func NewLinkValidator(allowedHosts []string, timeout time.Duration) *LinkValidator {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &LinkValidator{
		httpClient:   &http.Client{Timeout: timeout},
		allowedHosts: allowedHosts,
	}
}

// Validate returns a *ValidationError describing the first failed check, or
// nil when the link looks like a fetchable video.
func (v *LinkValidator) Validate(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return &ValidationError{Reason: "video URL is not a valid absolute URL"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Reason: fmt.Sprintf("unsupported URL scheme %q", parsed.Scheme)}
	}
	if len(v.allowedHosts) > 0 && !v.hostAllowed(parsed.Host) {
		return &ValidationError{Reason: fmt.Sprintf("host %q is not an allowed video source", parsed.Host)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return &ValidationError{Reason: "video URL is not requestable"}
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("video URL is unreachable: %v", err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return &ValidationError{Reason: fmt.Sprintf("video URL returned status %d", resp.StatusCode)}
	}

	if looksLikeVideo(parsed.Path, resp.Header.Get("Content-Type")) {
		return nil
	}
	return &ValidationError{Reason: "URL does not appear to be a video file"}
}

func (v *LinkValidator) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range v.allowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func looksLikeVideo(urlPath, contentType string) bool {
	if videoExtensions[strings.ToLower(path.Ext(urlPath))] {
		return true
	}
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "video/") || mediaType == "application/octet-stream"
}
