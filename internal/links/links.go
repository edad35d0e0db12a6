// Package links resolves page titles for URLs posted in the room.
package links

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"billfred/internal/extract"
	"billfred/internal/model"
	"billfred/internal/supervisor"
)

// Defaults for Resolver and ExtractURLs.
const (
	DefaultInterval = 3 * time.Second
	DefaultLimit    = 3
)

const (
	maxContentLength = 5 * 1024 * 1024
	userAgent        = "Mozilla/5.0 (compatible; billfred)"
	titlePrefix      = "TITLE: "
)

var deniedExt = map[string]struct{}{
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "pdf": {},
	"doc": {}, "docx": {}, "xls": {}, "ppt": {}, "pptx": {}, "pps": {},
	"djvu": {}, "avi": {}, "mp4": {}, "mp3": {}, "flac": {}, "ogg": {},
	"webm": {}, "js": {}, "css": {},
}

var allowedTypes = map[string]struct{}{
	"text/html":             {},
	"application/xhtml+xml": {},
}

var urlRe = regexp.MustCompile(`https?://\S+`)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sender delivers outbound chat messages.
type Sender interface {
	Send(msg model.OutboundMessage)
}

// Resolver fetches pages and posts their titles.
type Resolver struct {
	client   HTTPClient
	sender   Sender
	interval time.Duration
	log      *slog.Logger
}

// New creates a Resolver that sleeps interval between and after batches.
func New(client HTTPClient, sender Sender, interval time.Duration, log *slog.Logger) *Resolver {
	return &Resolver{
		client:   client,
		sender:   sender,
		interval: interval,
		log:      log,
	}
}

// Process resolves jobs one at a time, in order, and sends a message for each
// title found. It sleeps between jobs of a multi-job batch and once more at
// the end of every batch.
func (r *Resolver) Process(ctx context.Context, jobs []model.LinkJob) error {
	for _, job := range jobs {
		r.log.Info("processing link", "url", job.URL)
		if title, ok := r.Resolve(ctx, job.URL); ok {
			r.sender.Send(model.OutboundMessage{To: job.Target, Body: titlePrefix + title})
		}
		if len(jobs) > 1 {
			if err := supervisor.Sleep(ctx, r.interval); err != nil {
				return err
			}
		}
	}
	return supervisor.Sleep(ctx, r.interval)
}

// Resolve returns the page title of rawURL. Every failure is logged and
// reported as false.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, bool) {
	if !Allowed(rawURL) {
		r.log.Debug("extension not allowed", "url", rawURL)
		return "", false
	}

	title, err := r.fetchTitle(ctx, rawURL)
	if err != nil {
		r.log.Debug("title not found", "url", rawURL, "error", err)
		return "", false
	}

	r.log.Info("found title", "url", rawURL, "title", title)
	return title, true
}

func (r *Resolver) fetchTitle(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > maxContentLength {
		return "", fmt.Errorf("content too large: %d bytes", resp.ContentLength)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("parse content type %q: %w", contentType, err)
	}
	if _, ok := allowedTypes[mediaType]; !ok {
		return "", fmt.Errorf("content type %q not allowed", mediaType)
	}

	host := req.URL.Hostname()
	if resp.Request != nil && resp.Request.URL != nil {
		host = resp.Request.URL.Hostname()
	}

	title, err := extract.Title(io.LimitReader(resp.Body, maxContentLength), params["charset"], host)
	if err != nil {
		return "", fmt.Errorf("extract title: %w", err)
	}
	return title, nil
}

// Close releases idle connections held by the HTTP client.
func (r *Resolver) Close() {
	if c, ok := r.client.(interface{ CloseIdleConnections() }); ok {
		r.log.Info("closing links client")
		c.CloseIdleConnections()
	}
}

// Allowed reports whether rawURL may point at an HTML page, judging by the
// extension of its path.
func Allowed(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(path.Ext(strings.ToLower(u.Path)), ".")
	_, denied := deniedExt[ext]
	return !denied
}

// ExtractURLs returns up to limit distinct http(s) URLs from body in order of
// first appearance.
func ExtractURLs(body string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range urlRe.FindAllString(body, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if len(out) == limit {
			break
		}
	}
	return out
}
