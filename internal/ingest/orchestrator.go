// Package ingest runs the per-city content pipeline and schedules it across
// cities.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/citypulse/internal/ai"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
	"github.com/ObiAU/citypulse/internal/models"
	"github.com/ObiAU/citypulse/internal/sources"
	"github.com/ObiAU/citypulse/internal/store"
)

const (
	DefaultMaxItemsPerCategory = 5
	DefaultItemTimeout         = 45 * time.Second
)

type Scraper interface {
	Scrape(ctx context.Context, city string, p sources.Policy) sources.Envelope
}

type Enhancer interface {
	Enhance(ctx context.Context, req ai.Request) (ai.Enhancement, error)
}

type Options struct {
	Cities              models.Cities
	MaxItemsPerCategory int
	ItemTimeout         time.Duration
	ParallelCategories  bool
	// Policies defaults to sources.DefaultPolicies().
	Policies []sources.Policy
}

type CategoryReport struct {
	Processed  int               `json:"processed"`
	Skipped    int               `json:"skipped"`
	Provenance models.Provenance `json:"provenance"`
	Error      string            `json:"error,omitempty"`
}

type Report struct {
	City       string                             `json:"city"`
	Total      int                                `json:"total"`
	Skipped    int                                `json:"skipped"`
	Categories map[models.Category]CategoryReport `json:"categories"`
	StartedAt  time.Time                          `json:"startedAt"`
	Duration   time.Duration                      `json:"duration"`
}

type Orchestrator struct {
	scraper  Scraper
	enhancer Enhancer
	store    store.ContentStore
	metrics  *metrics.Metrics
	log      logger.Logger
	opts     Options
}

func NewOrchestrator(scraper Scraper, enhancer Enhancer, st store.ContentStore, opts Options, m *metrics.Metrics, log logger.Logger) *Orchestrator {
	if len(opts.Cities) == 0 {
		opts.Cities = models.DefaultCities
	}
	if opts.MaxItemsPerCategory <= 0 {
		opts.MaxItemsPerCategory = DefaultMaxItemsPerCategory
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = DefaultItemTimeout
	}
	if len(opts.Policies) == 0 {
		opts.Policies = sources.DefaultPolicies()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Orchestrator{
		scraper:  scraper,
		enhancer: enhancer,
		store:    st,
		metrics:  m,
		log:      log,
		opts:     opts,
	}
}

func (o *Orchestrator) Cities() models.Cities {
	return o.opts.Cities
}

// IngestCity scrapes, enhances and stores every category for city. Only an
// unsupported city or a cancelled context is returned as an error.
func (o *Orchestrator) IngestCity(ctx context.Context, city string) (Report, error) {
	canonical, err := o.opts.Cities.Resolve(city)
	if err != nil {
		return Report{}, err
	}

	run := &cityRun{
		Orchestrator: o,
		city:         canonical,
		log:          o.log.With(logger.String("city", canonical)),
	}
	report := Report{
		City:       canonical,
		Categories: make(map[models.Category]CategoryReport, len(o.opts.Policies)),
		StartedAt:  time.Now(),
	}
	run.log.Info("Starting city ingestion")

	var mu sync.Mutex
	record := func(c models.Category, cr CategoryReport) {
		mu.Lock()
		defer mu.Unlock()
		report.Categories[c] = cr
		report.Total += cr.Processed
		report.Skipped += cr.Skipped
	}

	if o.opts.ParallelCategories {
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range o.opts.Policies {
			g.Go(func() error {
				record(p.Category, run.category(gctx, p))
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, p := range o.opts.Policies {
			if ctx.Err() != nil {
				break
			}
			record(p.Category, run.category(ctx, p))
		}
	}

	report.Duration = time.Since(report.StartedAt)
	o.metrics.CityDuration.WithLabelValues(canonical).Observe(report.Duration.Seconds())

	if err := ctx.Err(); err != nil {
		o.metrics.CityRuns.WithLabelValues(canonical, "cancelled").Inc()
		run.log.Warn("City ingestion cancelled", logger.Int("processed", report.Total), logger.Error(err))
		return report, fmt.Errorf("ingest %s: %w", canonical, err)
	}

	o.metrics.CityRuns.WithLabelValues(canonical, "completed").Inc()
	run.log.Info("City ingestion completed",
		logger.Int("processed", report.Total),
		logger.Int("skipped", report.Skipped),
		logger.Duration("duration", report.Duration),
	)
	return report, nil
}

// cityRun holds state shared by the categories of one IngestCity call.
type cityRun struct {
	*Orchestrator
	city           string
	log            logger.Logger
	missingKeyOnce sync.Once
}

func (r *cityRun) category(ctx context.Context, p sources.Policy) CategoryReport {
	log := r.log.With(logger.String("category", string(p.Category)))

	env := r.scraper.Scrape(ctx, r.city, p)
	r.metrics.ScrapesTotal.WithLabelValues(string(p.Category), string(env.Source)).Inc()

	cr := CategoryReport{Provenance: env.Source}
	if env.Err != nil {
		cr.Error = env.Err.Error()
	}

	items := env.Items
	if len(items) > r.opts.MaxItemsPerCategory {
		items = items[:r.opts.MaxItemsPerCategory]
	}

	for _, raw := range items {
		if ctx.Err() != nil {
			break
		}
		if err := r.item(ctx, p.Category, env.Source, raw); err != nil {
			cr.Skipped++
			r.metrics.ItemsSkipped.WithLabelValues(r.city, string(p.Category)).Inc()
			log.Error("Failed to store item", logger.String("title", raw.Title), logger.Error(err))
			continue
		}
		cr.Processed++
		r.metrics.ItemsProcessed.WithLabelValues(r.city, string(p.Category), string(env.Source)).Inc()
	}

	log.Info("Category ingested",
		logger.String("source", string(env.Source)),
		logger.Int("processed", cr.Processed),
		logger.Int("skipped", cr.Skipped),
	)
	return cr
}

func (r *cityRun) item(ctx context.Context, c models.Category, prov models.Provenance, raw models.RawItem) error {
	itemCtx, cancel := context.WithTimeout(ctx, r.opts.ItemTimeout)
	defer cancel()

	req := enhanceRequest(raw, c, r.city)
	enh, err := r.enhancer.Enhance(itemCtx, req)
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		r.missingKeyOnce.Do(func() {
			r.log.Warn("AI key missing, storing descriptions as summaries")
		})
	case err != nil:
		r.log.Warn("Enhancement failed, using description", logger.String("title", raw.Title), logger.Error(err))
		enh = ai.Fallback(req)
	}

	_, err = r.store.Insert(ctx, assemble(raw, c, r.city, prov, enh))
	return err
}

func enhanceRequest(raw models.RawItem, c models.Category, city string) ai.Request {
	req := ai.Request{
		Title:       raw.Title,
		Description: raw.Description,
		ContentType: c.ContentType(),
		City:        city,
		Location:    raw.Location,
		EventDate:   raw.EventDate,
		Rating:      raw.Rating,
		Cuisine:     raw.Cuisine,
		SourceURL:   raw.SourceURL,
	}
	switch c.ContentType() {
	case models.ContentTypeRestaurant:
		req.Price = raw.PriceRange
	case models.ContentTypeApartment:
		req.Price = raw.Rent
	default:
		req.Price = raw.TicketPrice
	}
	return req
}

// assemble builds the canonical record, filling every default.
func assemble(raw models.RawItem, c models.Category, city string, prov models.Provenance, enh ai.Enhancement) models.ContentRecord {
	ct := c.ContentType()

	summary := strings.TrimSpace(enh.Summary)
	if summary == "" {
		summary = raw.Description
	}
	if strings.TrimSpace(summary) == "" {
		summary = raw.Title
	}

	cta := enh.CallToAction
	if cta == "" {
		cta = ai.DefaultCallToAction
	}

	highlights := enh.Highlights
	if highlights == nil {
		highlights = []string{}
	}

	rec := models.ContentRecord{
		Category:     c,
		City:         city,
		ContentType:  ct,
		Title:        raw.Title,
		Description:  raw.Description,
		AISummary:    summary,
		Highlights:   highlights,
		CallToAction: cta,
		LocalContext: enh.LocalContext,
		Source:       raw.Source,
		SourceURL:    raw.SourceURL,
		Provenance:   prov,
		Location:     raw.Location,
		Tags:         raw.Tags,
		Facets:       raw.Facets.ForContentType(ct),
	}
	if rec.Location == "" {
		rec.Location = city
	}
	if rec.Source == "" {
		rec.Source = c.DefaultSource()
	}
	if rec.SourceURL == "" {
		rec.SourceURL = c.DefaultSourceURL(city)
	}
	if len(rec.Tags) == 0 {
		rec.Tags = []string{string(ct), strings.ToLower(city)}
	}
	return rec
}
