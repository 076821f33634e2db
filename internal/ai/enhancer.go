package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/models"
)

const (
	DefaultBaseURL      = "https://api.groq.com/openai/v1"
	DefaultModel        = "openai/gpt-oss-20b"
	DefaultCallToAction = "Learn more!"
	maxHighlights       = 5
)

var ErrMissingAPIKey = errors.New("ai api key not configured")

// Request carries the raw item fields the summary is written from.
type Request struct {
	Title       string
	Description string
	ContentType models.ContentType
	City        string
	Location    string
	EventDate   string
	Price       string
	Rating      *float64
	Cuisine     string
	SourceURL   string
}

type Enhancement struct {
	Summary      string   `json:"summary"`
	Highlights   []string `json:"highlights"`
	CallToAction string   `json:"callToAction"`
	LocalContext string   `json:"localContext"`
}

// Fallback is what callers get whenever the model cannot be used.
func Fallback(req Request) Enhancement {
	return Enhancement{
		Summary:      req.Description,
		Highlights:   []string{},
		CallToAction: DefaultCallToAction,
	}
}

type Options struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxTokens         int
	Temperature       float64
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxRetries        int
}

type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int64
	temperature float64
	limiter     *rate.Limiter
	log         logger.Logger
}

func NewClient(opts Options, log logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 400
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	c := &Client{
		model:       opts.Model,
		maxTokens:   int64(opts.MaxTokens),
		temperature: opts.Temperature,
		limiter:     rate.NewLimiter(limit, 1),
		log:         log,
	}
	if opts.APIKey != "" {
		client := openai.NewClient(
			option.WithAPIKey(opts.APIKey),
			option.WithBaseURL(opts.BaseURL),
			option.WithRequestTimeout(opts.Timeout),
			option.WithMaxRetries(opts.MaxRetries),
		)
		c.client = &client
	}
	return c
}

func (c *Client) Configured() bool {
	return c != nil && c.client != nil
}

// Enhance never fails past this boundary except for a missing key, which
// still comes with the fallback enhancement.
func (c *Client) Enhance(ctx context.Context, req Request) (Enhancement, error) {
	if !c.Configured() {
		return Fallback(req), ErrMissingAPIKey
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.log.Debug("AI rate limiter wait aborted", logger.Error(err))
		return Fallback(req), nil
	}

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You write short, upbeat local guides for people living in Indian cities. Always answer with a single JSON object."),
			openai.UserMessage(buildPrompt(req)),
		},
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		c.log.Warn("AI enhancement failed, using description",
			logger.String("title", req.Title),
			logger.Error(err),
		)
		return Fallback(req), nil
	}

	if len(response.Choices) == 0 {
		c.log.Warn("AI enhancement returned no choices", logger.String("title", req.Title))
		return Fallback(req), nil
	}

	enh, ok := parseEnhancement(response.Choices[0].Message.Content)
	if !ok {
		c.log.Warn("AI enhancement response not usable", logger.String("title", req.Title))
		return Fallback(req), nil
	}
	return enh, nil
}

func buildPrompt(req Request) string {
	city := req.City
	if city == "" {
		city = "the city"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Create a compelling 2-3 sentence summary for this %s %s.\n\n", city, humanType(req.ContentType)))
	sb.WriteString(fmt.Sprintf("Title: %s\n", req.Title))
	sb.WriteString(fmt.Sprintf("Description: %s\n", req.Description))
	if req.Location != "" {
		sb.WriteString(fmt.Sprintf("Location: %s\n", req.Location))
	}
	if req.EventDate != "" {
		sb.WriteString(fmt.Sprintf("Date: %s\n", req.EventDate))
	}
	if req.Price != "" {
		sb.WriteString(fmt.Sprintf("Price: %s\n", req.Price))
	}
	if req.Rating != nil {
		sb.WriteString(fmt.Sprintf("Rating: %.1f/5\n", *req.Rating))
	}
	if req.Cuisine != "" {
		sb.WriteString(fmt.Sprintf("Cuisine: %s\n", req.Cuisine))
	}
	sb.WriteString(fmt.Sprintf("\nMake it sound exciting and relevant to %s residents. Focus on what makes it special.\n", city))
	sb.WriteString("Respond with JSON only:\n")
	sb.WriteString(`{"summary": "2-3 sentences", "highlights": ["up to 3 short points"], "callToAction": "short phrase", "localContext": "one sentence on why locals care"}`)
	return sb.String()
}

func humanType(ct models.ContentType) string {
	if ct == "" {
		return "listing"
	}
	return strings.ReplaceAll(string(ct), "-", " ")
}

// parseEnhancement accepts fenced or chatty replies and keeps whatever
// fields parse. A reply without a summary is not usable.
func parseEnhancement(content string) (Enhancement, bool) {
	raw := extractJSONObject(content)
	if raw == "" {
		return Enhancement{}, false
	}

	doc := gjson.Parse(raw)
	enh := Enhancement{
		Summary:      strings.TrimSpace(doc.Get("summary").String()),
		Highlights:   []string{},
		CallToAction: strings.TrimSpace(doc.Get("callToAction").String()),
		LocalContext: strings.TrimSpace(doc.Get("localContext").String()),
	}
	if enh.Summary == "" {
		return Enhancement{}, false
	}
	if enh.CallToAction == "" {
		enh.CallToAction = DefaultCallToAction
	}
	for _, h := range doc.Get("highlights").Array() {
		if s := strings.TrimSpace(h.String()); s != "" && len(enh.Highlights) < maxHighlights {
			enh.Highlights = append(enh.Highlights, s)
		}
	}
	return enh, true
}

func extractJSONObject(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	s = s[start : end+1]
	if !gjson.Valid(s) {
		return ""
	}
	return s
}
