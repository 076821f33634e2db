package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 8 << 20

var (
	ErrSearchFailed      = errors.New("firecrawl search failed")
	ErrUnexpectedPayload = errors.New("unexpected firecrawl payload")
)

// SearchRequest is one search plus structured extraction call.
type SearchRequest struct {
	Query    string
	Location string
	Limit    int
	Recency  string
	Schema   map[string]any
	Prompt   string
}

// SearchResult is one web result. Payload holds the JSON extraction and
// may be absent, malformed or empty.
type SearchResult struct {
	URL         string
	Title       string
	Description string
	Payload     gjson.Result
}

type Searcher interface {
	Configured() bool
	Search(ctx context.Context, req SearchRequest) ([]SearchResult, error)
}

type FirecrawlOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type FirecrawlClient struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("firecrawl returned status %d: %s", e.code, e.body)
}

func NewFirecrawlClient(opts FirecrawlOptions) *FirecrawlClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool { return isRetryable(err) }).
		WithBackoff(opts.RetryDelay, 10*opts.RetryDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		Build()

	return &FirecrawlClient{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		executor: failsafe.With[*http.Response](retry),
	}
}

func (c *FirecrawlClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

type searchBody struct {
	Query         string        `json:"query"`
	Limit         int           `json:"limit"`
	TBS           string        `json:"tbs,omitempty"`
	Location      string        `json:"location,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats         []jsonFormat `json:"formats"`
	OnlyMainContent bool         `json:"onlyMainContent"`
}

type jsonFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema,omitempty"`
	Prompt string         `json:"prompt,omitempty"`
}

func (c *FirecrawlClient) Search(ctx context.Context, req SearchRequest) ([]SearchResult, error) {
	payload, err := json.Marshal(searchBody{
		Query:    req.Query,
		Limit:    req.Limit,
		TBS:      req.Recency,
		Location: req.Location,
		ScrapeOptions: scrapeOptions{
			Formats:         []jsonFormat{{Type: "json", Schema: req.Schema, Prompt: req.Prompt}},
			OnlyMainContent: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		return c.do(ctx, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrSearchFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, &statusError{code: resp.StatusCode, body: snippet(body)})
	}

	return parseSearchResponse(body)
}

// do sends one attempt. Retryable statuses are turned into errors so the
// retry policy only ever sees errors and no response body leaks.
func (c *FirecrawlClient) do(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode, body: snippet(body)}
	}
	return resp, nil
}

func parseSearchResponse(body []byte) ([]SearchResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not JSON", ErrUnexpectedPayload)
	}

	doc := gjson.ParseBytes(body)
	if s := doc.Get("success"); s.Exists() && !s.Bool() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, doc.Get("error").String())
	}

	results := doc.Get("data.web")
	if !results.IsArray() {
		results = doc.Get("data")
	}
	if !results.IsArray() {
		return nil, fmt.Errorf("%w: no result array", ErrUnexpectedPayload)
	}

	out := make([]SearchResult, 0, len(results.Array()))
	for _, r := range results.Array() {
		out = append(out, SearchResult{
			URL:         firstString(r, "url", "metadata.sourceURL", "metadata.url"),
			Title:       firstString(r, "title", "metadata.title"),
			Description: firstString(r, "description", "metadata.description"),
			Payload:     r.Get("json"),
		})
	}
	return out, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
