// Package feed builds the personalized, newest-first content feed for a city.
package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ObiAU/citypulse/internal/models"
	"github.com/ObiAU/citypulse/internal/store"
)

// Item is the display shape of one record.
type Item struct {
	ID           string             `json:"id"`
	Category     models.Category    `json:"category"`
	ContentType  models.ContentType `json:"contentType"`
	Title        string             `json:"title"`
	Summary      string             `json:"summary"`
	Highlights   []string           `json:"highlights"`
	CallToAction string             `json:"callToAction"`
	LocalContext string             `json:"localContext,omitempty"`
	Location     string             `json:"location,omitempty"`
	Source       string             `json:"source"`
	SourceURL    string             `json:"sourceUrl"`
	Provenance   models.Provenance  `json:"provenance"`
	ScrapedAt    time.Time          `json:"scrapedAt"`
	Tags         []string           `json:"tags"`
	models.Facets
}

type Service struct {
	store  store.ContentStore
	cities models.Cities
}

func NewService(st store.ContentStore, cities models.Cities) *Service {
	if len(cities) == 0 {
		cities = models.DefaultCities
	}
	return &Service{store: st, cities: cities}
}

// Query returns the city's records for the selected pulses, newest first.
// Unknown pulse ids are ignored and no valid pulse means every category.
// A positive limit truncates the result.
func (s *Service) Query(ctx context.Context, city string, pulses []string, limit int) ([]Item, error) {
	canonical, err := s.cities.Resolve(city)
	if err != nil {
		return nil, err
	}

	records, err := s.store.QueryByCityAndCategory(ctx, canonical, ParsePulses(pulses))
	if err != nil {
		return nil, fmt.Errorf("query feed for %s: %w", canonical, err)
	}

	slices.SortStableFunc(records, func(a, b models.ContentRecord) int {
		return b.ScrapedAt.Compare(a.ScrapedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, toItem(r))
	}
	return items, nil
}

// ParsePulses keeps the valid, de-duplicated pulse ids. Entries may be
// comma separated.
func ParsePulses(raw []string) []models.Category {
	var out []models.Category
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			c, err := models.ParseCategory(part)
			if err != nil || slices.Contains(out, c) {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func toItem(r models.ContentRecord) Item {
	return Item{
		ID:           r.ID,
		Category:     r.Category,
		ContentType:  r.ContentType,
		Title:        r.Title,
		Summary:      r.DisplaySummary(),
		Highlights:   r.Highlights,
		CallToAction: r.CallToAction,
		LocalContext: r.LocalContext,
		Location:     r.Location,
		Source:       r.Source,
		SourceURL:    r.SourceURL,
		Provenance:   r.Provenance,
		ScrapedAt:    r.ScrapedAt,
		Tags:         r.Tags,
		Facets:       r.Facets,
	}
}
