package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/models"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 12
	DefaultRecency     = "qdr:w"
	DefaultCountry     = "India"
)

var ErrNoResults = errors.New("search returned no usable items")

// Envelope is the uniform scrape outcome. Success is true on every path;
// Source and Err tell live data apart from a fallback.
type Envelope struct {
	Success bool
	Items   []models.RawItem
	Source  models.Provenance
	Err     error
}

func (e Envelope) Live() bool {
	return e.Source.Live()
}

type ExecutorOptions struct {
	Limit   int
	Recency string
	Country string
}

type Executor struct {
	searcher Searcher
	limit    int
	recency  string
	country  string
	log      logger.Logger
}

// NewExecutor accepts a nil searcher; every scrape then serves demo data.
func NewExecutor(searcher Searcher, opts ExecutorOptions, log logger.Logger) *Executor {
	if opts.Limit <= 0 {
		opts.Limit = DefaultSearchLimit
	}
	if opts.Limit > MaxSearchLimit {
		opts.Limit = MaxSearchLimit
	}
	if opts.Recency == "" {
		opts.Recency = DefaultRecency
	}
	if opts.Country == "" {
		opts.Country = DefaultCountry
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{
		searcher: searcher,
		limit:    opts.Limit,
		recency:  opts.Recency,
		country:  opts.Country,
		log:      log,
	}
}

func (e *Executor) Scrape(ctx context.Context, city string, p Policy) Envelope {
	if e.searcher == nil || !e.searcher.Configured() {
		return Envelope{Success: true, Items: p.Demo(city), Source: models.ProvenanceDemo}
	}

	start := time.Now()
	items, err := e.search(ctx, city, p)
	if err == nil && len(items) == 0 {
		err = ErrNoResults
	}
	if err != nil {
		e.log.Warn("Scrape failed, serving demo data",
			logger.String("city", city),
			logger.String("category", string(p.Category)),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return Envelope{Success: true, Items: p.Demo(city), Source: models.ProvenanceDemoFallback, Err: err}
	}

	e.log.Debug("Scrape succeeded",
		logger.String("city", city),
		logger.String("category", string(p.Category)),
		logger.Int("items", len(items)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return Envelope{Success: true, Items: items, Source: models.ProvenanceSearchExtracted}
}

func (e *Executor) search(ctx context.Context, city string, p Policy) ([]models.RawItem, error) {
	results, err := e.searcher.Search(ctx, SearchRequest{
		Query:    p.QueryFor(city),
		Location: fmt.Sprintf("%s, %s", city, e.country),
		Limit:    e.limit,
		Recency:  e.recency,
		Schema:   p.Schema,
		Prompt:   p.PromptFor(city),
	})
	if err != nil {
		return nil, err
	}

	var items []models.RawItem
	for _, r := range results {
		data := r.Payload.Get(p.DataKey)
		if data.IsArray() && len(data.Array()) > 0 {
			for _, elem := range data.Array() {
				items = appendClean(items, p.Transform(elem, r, city))
			}
			continue
		}
		items = appendClean(items, p.Fallback(r, city))
	}

	if p.Filter == nil {
		return items, nil
	}
	kept := items[:0]
	for _, item := range items {
		if p.Filter(item, city) {
			kept = append(kept, item)
		}
	}
	return kept, nil
}

func appendClean(items []models.RawItem, item models.RawItem) []models.RawItem {
	item.Title = cleanText(item.Title, maxTitleRunes)
	if item.Title == "" {
		return items
	}
	item.Description = cleanText(item.Description, maxDescriptionRunes)
	item.Location = cleanText(item.Location, maxTitleRunes)
	return append(items, item)
}
