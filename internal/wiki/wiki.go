// Package wiki answers "wiki" chat commands with Wikipedia search results.
package wiki

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"billfred/internal/model"
	"billfred/internal/supervisor"
)

// Defaults for Client.
const (
	DefaultBaseURL  = "https://{lang}.wikipedia.org"
	DefaultLang     = "ru"
	DefaultLimit    = 3
	DefaultInterval = 2 * time.Second
)

// Replies that are not search results.
const (
	NothingFound = "Nothing found, sorry"
	SearchError  = "Search error"
)

var (
	json         = jsoniter.ConfigCompatibleWithStandardLibrary
	commandRe    = regexp.MustCompile(`^wiki([a-z]{2,3}(?:-[a-z]+)*)?(:title)?$`)
	snippetMarks = strings.NewReplacer(`<span class="searchmatch">`, "_", "</span>", "_")
)

// Query is a parsed wiki command.
type Query struct {
	Text      string
	Lang      string
	TitleOnly bool
}

// IsCommand reports whether token names a wiki command, e.g. "wiki",
// "wikien" or "wikide:title".
func IsCommand(token string) bool {
	return commandRe.MatchString(token)
}

// ParseCommand parses a message of the form "<nick> wiki[lang][:title] query".
// It returns false when the second token is not a wiki command or the query is
// empty.
func ParseCommand(body, defaultLang string) (Query, bool) {
	tokens := strings.Fields(body)
	if len(tokens) < 2 {
		return Query{}, false
	}
	m := commandRe.FindStringSubmatch(tokens[1])
	if m == nil {
		return Query{}, false
	}
	q := Query{
		Text:      strings.Join(tokens[2:], " "),
		Lang:      m[1],
		TitleOnly: m[2] != "",
	}
	if q.Lang == "" {
		q.Lang = defaultLang
	}
	if q.Text == "" {
		return Query{}, false
	}
	return q, true
}

// Sender delivers outbound chat messages.
type Sender interface {
	Send(msg model.OutboundMessage)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the MediaWiki search API.
type Client struct {
	client   HTTPClient
	baseURL  string
	limit    int
	interval time.Duration
	log      *slog.Logger
}

// New creates a Client. baseURL may contain a "{lang}" placeholder.
func New(client HTTPClient, baseURL string, limit int, interval time.Duration, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return &Client{
		client:   client,
		baseURL:  baseURL,
		limit:    limit,
		interval: interval,
		log:      log,
	}
}

type searchResponse struct {
	Query *struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

// Search returns the chat reply for q: formatted hits separated by blank
// lines, NothingFound or SearchError.
func (c *Client) Search(ctx context.Context, q Query) string {
	c.log.Info("searching wiki", "query", q.Text, "lang", q.Lang, "title_only", q.TitleOnly)
	return c.search(ctx, q)
}

// Answer searches for q, sends the reply to the given room and then waits for
// the configured interval before returning, so consecutive searches stay
// spaced out.
func (c *Client) Answer(ctx context.Context, q Query, sender Sender, to string) error {
	sender.Send(model.OutboundMessage{To: to, Body: c.Search(ctx, q)})
	return supervisor.Sleep(ctx, c.interval)
}

func (c *Client) search(ctx context.Context, q Query) string {
	base := strings.ReplaceAll(c.baseURL, "{lang}", q.Lang)

	text := q.Text
	if q.TitleOnly {
		text = "intitle:" + text
	}
	params := url.Values{
		"action":      {"query"},
		"list":        {"search"},
		"format":      {"json"},
		"srsearch":    {text},
		"srnamespace": {"0"},
		"srprop":      {"snippet"},
		"srlimit":     {strconv.Itoa(c.limit)},
	}

	resp, err := c.get(ctx, base+"/w/api.php?"+params.Encode())
	if err != nil {
		c.log.Error("wiki search", "query", q.Text, "error", err)
		return SearchError
	}
	if resp.Error != nil {
		c.log.Error("wiki api error", "code", resp.Error.Code, "info", resp.Error.Info)
		return SearchError
	}
	if resp.Query == nil || len(resp.Query.Search) == 0 {
		c.log.Info("nothing found", "query", q.Text)
		return NothingFound
	}

	hits := make([]string, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		link := base + "/wiki/" + url.PathEscape(hit.Title)
		hits = append(hits, fmt.Sprintf("%s - *%s*: %s", link, hit.Title, formatSnippet(hit.Snippet)))
	}
	return strings.Join(hits, "\n\n")
}

func (c *Client) get(ctx context.Context, apiURL string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "billfred/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func formatSnippet(s string) string {
	return html.UnescapeString(snippetMarks.Replace(s))
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() {
	if hc, ok := c.client.(interface{ CloseIdleConnections() }); ok {
		c.log.Info("closing wiki client")
		hc.CloseIdleConnections()
	}
}
