// Package store persists content records, collections and pulse preferences.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ObiAU/citypulse/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ContentStore is the boundary the ingestion pipeline and the feed use.
type ContentStore interface {
	// Insert assigns the id and scrapedAt of rec and returns the id.
	Insert(ctx context.Context, rec models.ContentRecord) (string, error)
	// DeleteAll removes every record of city, or everything when city is "".
	DeleteAll(ctx context.Context, city string) (int, error)
	// QueryByCityAndCategory returns all categories when categories is empty.
	QueryByCityAndCategory(ctx context.Context, city string, categories []models.Category) ([]models.ContentRecord, error)
	Get(ctx context.Context, id string) (models.ContentRecord, error)
	Stats(ctx context.Context) (Stats, error)
}

type CollectionStore interface {
	CreateCollection(ctx context.Context, userID, name, description string) (models.Collection, error)
	// SaveToCollection adds itemID to the named collection, creating it if
	// needed. An empty name means the default collection.
	SaveToCollection(ctx context.Context, userID, itemID, name string) (models.Collection, error)
	ListCollections(ctx context.Context, userID string) ([]models.Collection, error)
	RemoveFromCollection(ctx context.Context, userID, collectionID, itemID string) (models.Collection, error)
}

type PreferenceStore interface {
	SavePreferences(ctx context.Context, userID, city string, pulses []models.Category) (models.PulsePreferences, error)
	GetPreferences(ctx context.Context, userID string) (models.PulsePreferences, error)
}

type Store interface {
	ContentStore
	CollectionStore
	PreferenceStore
	Close() error
}

type Stats struct {
	Total      int                     `json:"total"`
	ByCity     map[string]int          `json:"byCity"`
	ByCategory map[models.Category]int `json:"byCategory"`
}

// prepare validates rec and drops facets that do not belong to its type.
func prepare(rec *models.ContentRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ContentType == "" {
		rec.ContentType = rec.Category.ContentType()
	}
	rec.Facets = rec.Facets.ForContentType(rec.ContentType)
	if rec.Highlights == nil {
		rec.Highlights = []string{}
	}
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return nil
}

// clock hands out strictly increasing timestamps.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}
	return &clock{now: now}
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

func collectionName(name string) string {
	if name == "" {
		return models.DefaultCollectionName
	}
	return name
}

func categoryStrings(cs []models.Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
