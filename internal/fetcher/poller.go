package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"billfred/internal/extract"
	"billfred/internal/filter"
	"billfred/internal/model"
)

// Poller turns successive downloads of a feed into the list of entries that
// appeared since the previous poll. It keeps one watermark (the newest publish
// time already seen) per feed prefix.
type Poller struct {
	fetcher *Fetcher
	log     *slog.Logger

	mu      sync.Mutex
	marks   map[string]time.Time
	filters map[string]*filter.Set
}

// NewPoller creates a Poller with no watermarks.
func NewPoller(f *Fetcher, log *slog.Logger) *Poller {
	return &Poller{
		fetcher: f,
		log:     log,
		marks:   make(map[string]time.Time),
		filters: make(map[string]*filter.Set),
	}
}

// Poll downloads the task's feed and returns one formatted line per entry
// newer than the watermark. The first poll of a prefix only records the
// watermark and returns nothing. Unparseable feeds are logged and yield no
// entries; download failures are returned.
func (p *Poller) Poll(ctx context.Context, task model.FeedTask) ([]string, error) {
	p.log.Info("downloading feed", "prefix", task.Prefix, "url", task.URL)

	feed, err := p.fetcher.Fetch(ctx, task.URL)
	if errors.Is(err, ErrParse) {
		p.log.Error("feed error", "prefix", task.Prefix, "url", task.URL, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", task.Prefix, err)
	}

	return p.collect(task, feed.Items), nil
}

// Watermark returns the newest publish time seen for prefix. The boolean is
// false when the prefix has never been polled successfully.
func (p *Poller) Watermark(prefix string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.marks[prefix]
	return t, ok
}

func (p *Poller) collect(task model.FeedTask, items []*gofeed.Item) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, primed := p.marks[task.Prefix]
	if !primed {
		if newest, ok := newestTime(items); ok {
			p.marks[task.Prefix] = newest
			p.log.Info("feed primed", "prefix", task.Prefix, "watermark", newest)
		} else {
			p.log.Info("no entries", "prefix", task.Prefix, "url", task.URL)
		}
		return nil
	}

	set, err := p.filterSet(task)
	if err != nil {
		p.log.Error("feed filters", "prefix", task.Prefix, "error", err)
	}

	newest := last
	var out []string
	for _, item := range items {
		t, ok := entryTime(item)
		if !ok || !t.After(last) {
			continue
		}
		if t.After(newest) {
			newest = t
		}
		body := entryBody(item)
		if err != nil || !set.Match(filter.Entry{Title: item.Title, Body: body}) {
			continue
		}
		out = append(out, formatEntry(task, item, body))
	}

	p.marks[task.Prefix] = newest
	p.log.Info("feed processed", "prefix", task.Prefix, "new_entries", len(out))
	return out
}

// filterSet returns the compiled filters of task, compiling them on first use.
// Callers hold p.mu.
func (p *Poller) filterSet(task model.FeedTask) (*filter.Set, error) {
	if set, ok := p.filters[task.Prefix]; ok {
		return set, nil
	}
	set, err := filter.Compile(task.Filters)
	if err != nil {
		return nil, err
	}
	p.filters[task.Prefix] = set
	return set, nil
}

func entryTime(item *gofeed.Item) (time.Time, bool) {
	switch {
	case item.PublishedParsed != nil:
		return *item.PublishedParsed, true
	case item.UpdatedParsed != nil:
		return *item.UpdatedParsed, true
	}
	return time.Time{}, false
}

func newestTime(items []*gofeed.Item) (time.Time, bool) {
	var newest time.Time
	found := false
	for _, item := range items {
		t, ok := entryTime(item)
		if !ok {
			continue
		}
		if !found || t.After(newest) {
			newest = t
			found = true
		}
	}
	return newest, found
}

// entryBody is the plain text of an entry's description followed by its full
// content when the feed carries both.
func entryBody(item *gofeed.Item) string {
	var parts []string
	if text := extract.StripTags(item.Description); text != "" {
		parts = append(parts, text)
	}
	if item.Content != "" && item.Content != item.Description {
		if text := extract.StripTags(item.Content); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func formatEntry(task model.FeedTask, item *gofeed.Item, body string) string {
	line := fmt.Sprintf("%s: %s %s", task.Prefix, item.Title, item.Link)
	if !task.IncludeBody || body == "" {
		return line
	}
	return line + "\n\n" + body + "\n"
}
