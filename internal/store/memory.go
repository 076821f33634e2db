package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ObiAU/citypulse/internal/models"
)

type Memory struct {
	mu          sync.RWMutex
	records     map[string]models.ContentRecord
	order       []string
	collections map[string]models.Collection
	prefs       map[string]models.PulsePreferences
	clock       *clock

	retention     time.Duration
	cleanupTicker *time.Ticker
	stopChan      chan struct{}
	closeOnce     sync.Once
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = newClock(now) }
}

// NewMemory returns an in-process store. A positive retention starts an
// hourly sweep that drops records older than it.
func NewMemory(retention time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		records:     make(map[string]models.ContentRecord),
		collections: make(map[string]models.Collection),
		prefs:       make(map[string]models.PulsePreferences),
		clock:       newClock(nil),
		retention:   retention,
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if retention > 0 {
		m.cleanupTicker = time.NewTicker(1 * time.Hour)
		go m.cleanup()
	}
	return m
}

func (m *Memory) Insert(ctx context.Context, rec models.ContentRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := prepare(&rec); err != nil {
		return "", fmt.Errorf("insert %q: %w", rec.Title, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec.ID = uuid.NewString()
	rec.ScrapedAt = m.clock.next()
	rec.Highlights = slices.Clone(rec.Highlights)
	rec.Tags = slices.Clone(rec.Tags)
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return rec.ID, nil
}

func (m *Memory) DeleteAll(ctx context.Context, city string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.removeWhere(func(r models.ContentRecord) bool {
		return city == "" || r.City == city
	}), nil
}

func (m *Memory) QueryByCityAndCategory(ctx context.Context, city string, categories []models.Category) ([]models.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.ContentRecord{}
	for _, id := range m.order {
		r := m.records[id]
		if r.City != city {
			continue
		}
		if len(categories) > 0 && !slices.Contains(categories, r.Category) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (models.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.ContentRecord{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.records[id]
	if !ok {
		return models.ContentRecord{}, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:      len(m.records),
		ByCity:     make(map[string]int),
		ByCategory: make(map[models.Category]int),
	}
	for _, r := range m.records {
		s.ByCity[r.City]++
		s.ByCategory[r.Category]++
	}
	return s, nil
}

// removeWhere must be called with the write lock held.
func (m *Memory) removeWhere(match func(models.ContentRecord) bool) int {
	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		if match(m.records[id]) {
			delete(m.records, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return removed
}

func (m *Memory) cleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.performCleanup()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Memory) performCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.clock.now().Add(-m.retention)
	m.removeWhere(func(r models.ContentRecord) bool {
		return r.ScrapedAt.Before(cutoff)
	})
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		if m.cleanupTicker != nil {
			m.cleanupTicker.Stop()
		}
		close(m.stopChan)
	})
	return nil
}

func (m *Memory) CreateCollection(ctx context.Context, userID, name, description string) (models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return models.Collection{}, err
	}
	name = collectionName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findCollection(userID, name); ok {
		return models.Collection{}, fmt.Errorf("collection %q: %w", name, ErrAlreadyExists)
	}
	return m.newCollection(userID, name, description, nil), nil
}

func (m *Memory) SaveToCollection(ctx context.Context, userID, itemID, name string) (models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return models.Collection{}, err
	}
	name = collectionName(name)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.findCollection(userID, name)
	if !ok {
		return m.newCollection(userID, name, "", []string{itemID}), nil
	}
	if !slices.Contains(c.Items, itemID) {
		c.Items = append(slices.Clone(c.Items), itemID)
		c.UpdatedAt = m.clock.now().UTC()
		m.collections[c.ID] = c
	}
	return c, nil
}

func (m *Memory) ListCollections(ctx context.Context, userID string) ([]models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Collection{}
	for _, c := range m.collections {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b models.Collection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (m *Memory) RemoveFromCollection(ctx context.Context, userID, collectionID, itemID string) (models.Collection, error) {
	if err := ctx.Err(); err != nil {
		return models.Collection{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collectionID]
	if !ok || c.UserID != userID {
		return models.Collection{}, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	}
	c.Items = slices.DeleteFunc(slices.Clone(c.Items), func(id string) bool { return id == itemID })
	c.UpdatedAt = m.clock.now().UTC()
	m.collections[c.ID] = c
	return c, nil
}

func (m *Memory) findCollection(userID, name string) (models.Collection, bool) {
	for _, c := range m.collections {
		if c.UserID == userID && c.Name == name {
			return c, true
		}
	}
	return models.Collection{}, false
}

func (m *Memory) newCollection(userID, name, description string, items []string) models.Collection {
	if items == nil {
		items = []string{}
	}
	now := m.clock.next()
	c := models.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.collections[c.ID] = c
	return c
}

func (m *Memory) SavePreferences(ctx context.Context, userID, city string, pulses []models.Category) (models.PulsePreferences, error) {
	if err := ctx.Err(); err != nil {
		return models.PulsePreferences{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.now().UTC()
	p, ok := m.prefs[userID]
	if !ok {
		p = models.PulsePreferences{UserID: userID, CreatedAt: now}
	}
	p.City = city
	p.SelectedPulses = slices.Clone(pulses)
	p.OnboardingCompleted = true
	p.UpdatedAt = now
	m.prefs[userID] = p
	return p, nil
}

func (m *Memory) GetPreferences(ctx context.Context, userID string) (models.PulsePreferences, error) {
	if err := ctx.Err(); err != nil {
		return models.PulsePreferences{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.prefs[userID]
	if !ok {
		return models.PulsePreferences{}, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	return p, nil
}
