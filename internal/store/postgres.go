package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ObiAU/citypulse/internal/models"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultPingTimeout     = 5 * time.Second

	uniqueViolation = "23505"
)

const schema = `
CREATE TABLE IF NOT EXISTS content (
	id             UUID PRIMARY KEY,
	category       TEXT NOT NULL,
	city           TEXT NOT NULL,
	content_type   TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	ai_summary     TEXT NOT NULL,
	highlights     TEXT[] NOT NULL DEFAULT '{}',
	call_to_action TEXT NOT NULL DEFAULT '',
	local_context  TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	source_url     TEXT NOT NULL DEFAULT '',
	provenance     TEXT NOT NULL DEFAULT '',
	scraped_at     TIMESTAMPTZ NOT NULL,
	location       TEXT NOT NULL DEFAULT '',
	tags           TEXT[] NOT NULL DEFAULT '{}',
	cuisine        TEXT NOT NULL DEFAULT '',
	price_range    TEXT NOT NULL DEFAULT '',
	rating         DOUBLE PRECISION,
	event_date     TEXT NOT NULL DEFAULT '',
	venue          TEXT NOT NULL DEFAULT '',
	event_category TEXT NOT NULL DEFAULT '',
	organizer      TEXT NOT NULL DEFAULT '',
	ticket_price   TEXT NOT NULL DEFAULT '',
	topic          TEXT NOT NULL DEFAULT '',
	published_time TEXT NOT NULL DEFAULT '',
	rent           TEXT NOT NULL DEFAULT '',
	bedrooms       TEXT NOT NULL DEFAULT '',
	area           TEXT NOT NULL DEFAULT '',
	amenities      TEXT NOT NULL DEFAULT '',
	furnishing     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS content_city_category_idx ON content (city, category);

CREATE TABLE IF NOT EXISTS collections (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	items       TEXT[] NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS pulse_preferences (
	user_id              TEXT PRIMARY KEY,
	city                 TEXT NOT NULL DEFAULT '',
	selected_pulses      TEXT[] NOT NULL DEFAULT '{}',
	onboarding_completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);
`

const contentColumns = `id, category, city, content_type, title, description, ai_summary, highlights,
	call_to_action, local_context, source, source_url, provenance, scraped_at, location, tags,
	cuisine, price_range, rating, event_date, venue, event_category, organizer, ticket_price, topic,
	published_time, rent, bedrooms, area, amenities, furnishing`

const collectionColumns = `id, user_id, name, description, items, created_at, updated_at`

const preferenceColumns = `user_id, city, selected_pulses, onboarding_completed, created_at, updated_at`

type contentRow struct {
	ID           string         `db:"id"`
	Category     string         `db:"category"`
	City         string         `db:"city"`
	ContentType  string         `db:"content_type"`
	Title        string         `db:"title"`
	Description  string         `db:"description"`
	AISummary    string         `db:"ai_summary"`
	Highlights   pq.StringArray `db:"highlights"`
	CallToAction string         `db:"call_to_action"`
	LocalContext string         `db:"local_context"`
	Source       string         `db:"source"`
	SourceURL    string         `db:"source_url"`
	Provenance   string         `db:"provenance"`
	ScrapedAt    time.Time      `db:"scraped_at"`
	Location     string         `db:"location"`
	Tags         pq.StringArray `db:"tags"`
	models.Facets
}

func toRow(r models.ContentRecord) contentRow {
	return contentRow{
		ID:           r.ID,
		Category:     string(r.Category),
		City:         r.City,
		ContentType:  string(r.ContentType),
		Title:        r.Title,
		Description:  r.Description,
		AISummary:    r.AISummary,
		Highlights:   pq.StringArray(r.Highlights),
		CallToAction: r.CallToAction,
		LocalContext: r.LocalContext,
		Source:       r.Source,
		SourceURL:    r.SourceURL,
		Provenance:   string(r.Provenance),
		ScrapedAt:    r.ScrapedAt,
		Location:     r.Location,
		Tags:         pq.StringArray(r.Tags),
		Facets:       r.Facets,
	}
}

func (row contentRow) record() models.ContentRecord {
	return models.ContentRecord{
		ID:           row.ID,
		Category:     models.Category(row.Category),
		City:         row.City,
		ContentType:  models.ContentType(row.ContentType),
		Title:        row.Title,
		Description:  row.Description,
		AISummary:    row.AISummary,
		Highlights:   nonNil(row.Highlights),
		CallToAction: row.CallToAction,
		LocalContext: row.LocalContext,
		Source:       row.Source,
		SourceURL:    row.SourceURL,
		Provenance:   models.Provenance(row.Provenance),
		ScrapedAt:    row.ScrapedAt,
		Location:     row.Location,
		Tags:         nonNil(row.Tags),
		Facets:       row.Facets,
	}
}

type collectionRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Items       pq.StringArray `db:"items"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row collectionRow) collection() models.Collection {
	return models.Collection{
		ID:          row.ID,
		UserID:      row.UserID,
		Name:        row.Name,
		Description: row.Description,
		Items:       nonNil(row.Items),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

type preferenceRow struct {
	UserID              string         `db:"user_id"`
	City                string         `db:"city"`
	SelectedPulses      pq.StringArray `db:"selected_pulses"`
	OnboardingCompleted bool           `db:"onboarding_completed"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

func (row preferenceRow) preferences() models.PulsePreferences {
	pulses := make([]models.Category, 0, len(row.SelectedPulses))
	for _, p := range row.SelectedPulses {
		pulses = append(pulses, models.Category(p))
	}
	return models.PulsePreferences{
		UserID:              row.UserID,
		City:                row.City,
		SelectedPulses:      pulses,
		OnboardingCompleted: row.OnboardingCompleted,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type Postgres struct {
	db    *sqlx.DB
	clock *clock
}

// Connect opens a pooled connection to dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

func NewPostgres(db *sqlx.DB, now func() time.Time) *Postgres {
	return &Postgres{db: db, clock: newClock(now)}
}

// Migrate creates the tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Insert(ctx context.Context, rec models.ContentRecord) (string, error) {
	if err := prepare(&rec); err != nil {
		return "", fmt.Errorf("insert %q: %w", rec.Title, err)
	}
	rec.ID = uuid.NewString()
	rec.ScrapedAt = p.clock.next()

	query := `INSERT INTO content (` + contentColumns + `) VALUES (
		:id, :category, :city, :content_type, :title, :description, :ai_summary, :highlights,
		:call_to_action, :local_context, :source, :source_url, :provenance, :scraped_at, :location, :tags,
		:cuisine, :price_range, :rating, :event_date, :venue, :event_category, :organizer, :ticket_price, :topic,
		:published_time, :rent, :bedrooms, :area, :amenities, :furnishing)`

	if _, err := p.db.NamedExecContext(ctx, query, toRow(rec)); err != nil {
		return "", fmt.Errorf("failed to insert content: %w", err)
	}
	return rec.ID, nil
}

func (p *Postgres) DeleteAll(ctx context.Context, city string) (int, error) {
	var (
		result sql.Result
		err    error
	)
	if city == "" {
		result, err = p.db.ExecContext(ctx, `DELETE FROM content`)
	} else {
		result, err = p.db.ExecContext(ctx, `DELETE FROM content WHERE city = $1`, city)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete content: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted content: %w", err)
	}
	return int(n), nil
}

func (p *Postgres) QueryByCityAndCategory(ctx context.Context, city string, categories []models.Category) ([]models.ContentRecord, error) {
	query := `SELECT ` + contentColumns + ` FROM content WHERE city = $1`
	args := []any{city}
	if len(categories) > 0 {
		query += ` AND category = ANY($2)`
		args = append(args, pq.StringArray(categoryStrings(categories)))
	}
	query += ` ORDER BY scraped_at DESC`

	var rows []contentRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query content: %w", err)
	}

	out := make([]models.ContentRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (models.ContentRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.ContentRecord{}, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}

	var row contentRow
	err := p.db.GetContext(ctx, &row, `SELECT `+contentColumns+` FROM content WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ContentRecord{}, fmt.Errorf("content %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ContentRecord{}, fmt.Errorf("failed to get content: %w", err)
	}
	return row.record(), nil
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		City     string `db:"city"`
		Category string `db:"category"`
		Count    int    `db:"count"`
	}
	query := `SELECT city, category, COUNT(*) AS count FROM content GROUP BY city, category`
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return Stats{}, fmt.Errorf("failed to collect stats: %w", err)
	}

	s := Stats{ByCity: make(map[string]int), ByCategory: make(map[models.Category]int)}
	for _, r := range rows {
		s.Total += r.Count
		s.ByCity[r.City] += r.Count
		s.ByCategory[models.Category(r.Category)] += r.Count
	}
	return s, nil
}

func (p *Postgres) CreateCollection(ctx context.Context, userID, name, description string) (models.Collection, error) {
	name = collectionName(name)
	now := p.clock.next()

	var row collectionRow
	query := `INSERT INTO collections (` + collectionColumns + `)
		VALUES ($1, $2, $3, $4, '{}', $5, $5)
		RETURNING ` + collectionColumns

	err := p.db.GetContext(ctx, &row, query, uuid.NewString(), userID, name, description, now)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return models.Collection{}, fmt.Errorf("collection %q: %w", name, ErrAlreadyExists)
	}
	if err != nil {
		return models.Collection{}, fmt.Errorf("failed to create collection: %w", err)
	}
	return row.collection(), nil
}

// SaveToCollection creates the collection on first use, then appends the
// item unless it is already present.
func (p *Postgres) SaveToCollection(ctx context.Context, userID, itemID, name string) (models.Collection, error) {
	name = collectionName(name)
	now := p.clock.next()

	insertQuery := `INSERT INTO collections (` + collectionColumns + `)
		VALUES ($1, $2, $3, '', '{}', $4, $4)
		ON CONFLICT (user_id, name) DO NOTHING`
	if _, err := p.db.ExecContext(ctx, insertQuery, uuid.NewString(), userID, name, now); err != nil {
		return models.Collection{}, fmt.Errorf("failed to create collection: %w", err)
	}

	appendQuery := `UPDATE collections
		SET items = array_append(items, $3), updated_at = $4
		WHERE user_id = $1 AND name = $2 AND NOT ($3 = ANY(items))`
	if _, err := p.db.ExecContext(ctx, appendQuery, userID, name, itemID, now); err != nil {
		return models.Collection{}, fmt.Errorf("failed to save to collection: %w", err)
	}

	var row collectionRow
	selectQuery := `SELECT ` + collectionColumns + ` FROM collections WHERE user_id = $1 AND name = $2`
	if err := p.db.GetContext(ctx, &row, selectQuery, userID, name); err != nil {
		return models.Collection{}, fmt.Errorf("failed to select collection: %w", err)
	}
	return row.collection(), nil
}

func (p *Postgres) ListCollections(ctx context.Context, userID string) ([]models.Collection, error) {
	var rows []collectionRow
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE user_id = $1 ORDER BY created_at ASC`
	if err := p.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	out := make([]models.Collection, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.collection())
	}
	return out, nil
}

func (p *Postgres) RemoveFromCollection(ctx context.Context, userID, collectionID, itemID string) (models.Collection, error) {
	if _, err := uuid.Parse(collectionID); err != nil {
		return models.Collection{}, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	}

	var row collectionRow
	query := `UPDATE collections
		SET items = array_remove(items, $3), updated_at = $4
		WHERE id = $1 AND user_id = $2
		RETURNING ` + collectionColumns
	err := p.db.GetContext(ctx, &row, query, collectionID, userID, itemID, p.clock.next())
	if errors.Is(err, sql.ErrNoRows) {
		return models.Collection{}, fmt.Errorf("collection %s: %w", collectionID, ErrNotFound)
	}
	if err != nil {
		return models.Collection{}, fmt.Errorf("failed to remove from collection: %w", err)
	}
	return row.collection(), nil
}

func (p *Postgres) SavePreferences(ctx context.Context, userID, city string, pulses []models.Category) (models.PulsePreferences, error) {
	var row preferenceRow
	query := `INSERT INTO pulse_preferences (` + preferenceColumns + `)
		VALUES ($1, $2, $3, TRUE, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET city = EXCLUDED.city, selected_pulses = EXCLUDED.selected_pulses,
			onboarding_completed = TRUE, updated_at = EXCLUDED.updated_at
		RETURNING ` + preferenceColumns

	err := p.db.GetContext(ctx, &row, query, userID, city, pq.StringArray(categoryStrings(pulses)), p.clock.next())
	if err != nil {
		return models.PulsePreferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	return row.preferences(), nil
}

func (p *Postgres) GetPreferences(ctx context.Context, userID string) (models.PulsePreferences, error) {
	var row preferenceRow
	err := p.db.GetContext(ctx, &row, `SELECT `+preferenceColumns+` FROM pulse_preferences WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PulsePreferences{}, fmt.Errorf("preferences for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return models.PulsePreferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}
	return row.preferences(), nil
}
