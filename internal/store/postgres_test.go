package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/citypulse/internal/models"
)

var contentColumnNames = []string{
	"id", "category", "city", "content_type", "title", "description", "ai_summary", "highlights",
	"call_to_action", "local_context", "source", "source_url", "provenance", "scraped_at", "location", "tags",
	"cuisine", "price_range", "rating", "event_date", "venue", "event_category", "organizer", "ticket_price", "topic",
	"published_time", "rent", "bedrooms", "area", "amenities", "furnishing",
}

var collectionColumnNames = []string{"id", "user_id", "name", "description", "items", "created_at", "updated_at"}

const testID = "6f1c2a7e-3b1d-4a43-9d55-1f2f1c6f8a10"

func newPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "postgres")
	return NewPostgres(db, frozenClock()), mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func meetupRow(title string, at time.Time) []driver.Value {
	return []driver.Value{
		testID, "tech-meetups", "Mumbai", "tech-meetup", title, "desc", "summary", "{Go,Talks}",
		"Learn more!", "", "GDG", "https://gdg.community.dev/gdg-mumbai/", "demo", at, "Mumbai", "{tech-meetup,mumbai}",
		"", "", nil, "Saturday", "Hub", "Meetup", "GDG Mumbai", "Free", "Go",
		"", "", "", "", "", "",
	}
}

func TestPostgres_Migrate(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS content").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, p.Migrate(context.Background()))
	expectationsMet(t, mock)
}

func TestPostgres_Insert(t *testing.T) {
	p, mock := newPostgres(t)

	rec := record("Chennai", models.CategoryRestaurants, "Dosa Camp")
	rec.Venue = "dropped"

	mock.ExpectExec("INSERT INTO content").WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := p.Insert(context.Background(), rec)
	require.NoError(t, err)
	_, parseErr := uuid.Parse(id)
	assert.NoError(t, parseErr)
	expectationsMet(t, mock)
}

func TestPostgres_InsertValidatesBeforeWriting(t *testing.T) {
	p, mock := newPostgres(t)

	_, err := p.Insert(context.Background(), record("", models.CategoryRestaurants, "x"))
	assert.ErrorIs(t, err, models.ErrMissingCity)
	expectationsMet(t, mock)
}

func TestPostgres_DeleteAll(t *testing.T) {
	p, mock := newPostgres(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM content WHERE city").
		WithArgs("Chennai").
		WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectExec("DELETE FROM content").
		WillReturnResult(sqlmock.NewResult(0, 20))

	n, err := p.DeleteAll(ctx, "Chennai")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = p.DeleteAll(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	expectationsMet(t, mock)
}

func TestPostgres_QueryByCityAndCategory(t *testing.T) {
	p, mock := newPostgres(t)
	at := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM content WHERE city = \$1 AND category = ANY\(\$2\) ORDER BY scraped_at DESC`).
		WithArgs("Mumbai", pq.StringArray{"tech-meetups"}).
		WillReturnRows(sqlmock.NewRows(contentColumnNames).AddRow(meetupRow("Gophers", at)...))

	recs, err := p.QueryByCityAndCategory(context.Background(), "Mumbai", []models.Category{models.CategoryTechMeetups})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	r := recs[0]
	assert.Equal(t, models.CategoryTechMeetups, r.Category)
	assert.Equal(t, models.ContentTypeTechMeetup, r.ContentType)
	assert.Equal(t, []string{"Go", "Talks"}, r.Highlights)
	assert.Equal(t, []string{"tech-meetup", "mumbai"}, r.Tags)
	assert.Equal(t, "Go", r.Topic)
	assert.Nil(t, r.Rating)
	assert.Equal(t, models.ProvenanceDemo, r.Provenance)
	expectationsMet(t, mock)
}

func TestPostgres_QueryAllCategories(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectQuery(`SELECT .+ FROM content WHERE city = \$1 ORDER BY scraped_at DESC`).
		WithArgs("Delhi").
		WillReturnRows(sqlmock.NewRows(contentColumnNames))

	recs, err := p.QueryByCityAndCategory(context.Background(), "Delhi", nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
	expectationsMet(t, mock)
}

func TestPostgres_Get(t *testing.T) {
	p, mock := newPostgres(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT .+ FROM content WHERE id").
		WithArgs(testID).
		WillReturnRows(sqlmock.NewRows(contentColumnNames).AddRow(meetupRow("Gophers", time.Now())...))
	mock.ExpectQuery("SELECT .+ FROM content WHERE id").
		WithArgs(testID).
		WillReturnError(sql.ErrNoRows)

	r, err := p.Get(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, "Gophers", r.Title)

	_, err = p.Get(ctx, testID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	expectationsMet(t, mock)
}

func TestPostgres_Stats(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectQuery("SELECT city, category, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"city", "category", "count"}).
			AddRow("Delhi", "restaurants", 4).
			AddRow("Delhi", "local-news", 3).
			AddRow("Mumbai", "restaurants", 5))

	s, err := p.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, s.Total)
	assert.Equal(t, 7, s.ByCity["Delhi"])
	assert.Equal(t, 9, s.ByCategory[models.CategoryRestaurants])
	expectationsMet(t, mock)
}

func TestPostgres_SaveToCollection(t *testing.T) {
	p, mock := newPostgres(t)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO collections .+ ON CONFLICT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE collections SET items = array_append").
		WithArgs("u1", models.DefaultCollectionName, "item-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .+ FROM collections WHERE user_id").
		WithArgs("u1", models.DefaultCollectionName).
		WillReturnRows(sqlmock.NewRows(collectionColumnNames).
			AddRow(testID, "u1", models.DefaultCollectionName, "", "{item-1}", now, now))

	c, err := p.SaveToCollection(context.Background(), "u1", "item-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"item-1"}, c.Items)
	assert.Equal(t, models.DefaultCollectionName, c.Name)
	expectationsMet(t, mock)
}

func TestPostgres_CreateCollectionDuplicate(t *testing.T) {
	p, mock := newPostgres(t)

	mock.ExpectQuery("INSERT INTO collections").
		WillReturnError(&pq.Error{Code: uniqueViolation})

	_, err := p.CreateCollection(context.Background(), "u1", "Weekend", "")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	expectationsMet(t, mock)
}

func TestPostgres_RemoveFromCollection(t *testing.T) {
	p, mock := newPostgres(t)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectQuery("UPDATE collections SET items = array_remove").
		WithArgs(testID, "u1", "item-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(collectionColumnNames).
			AddRow(testID, "u1", "Saved Items", "", "{}", now, now))
	mock.ExpectQuery("UPDATE collections SET items = array_remove").
		WillReturnError(sql.ErrNoRows)

	c, err := p.RemoveFromCollection(ctx, "u1", testID, "item-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = p.RemoveFromCollection(ctx, "u1", testID, "item-1")
	assert.ErrorIs(t, err, ErrNotFound)
	expectationsMet(t, mock)
}

func TestPostgres_Preferences(t *testing.T) {
	p, mock := newPostgres(t)
	ctx := context.Background()
	now := time.Now()
	cols := []string{"user_id", "city", "selected_pulses", "onboarding_completed", "created_at", "updated_at"}

	mock.ExpectQuery("INSERT INTO pulse_preferences .+ ON CONFLICT").
		WithArgs("u1", "Mumbai", pq.StringArray{"tech-meetups"}, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("u1", "Mumbai", "{tech-meetups}", true, now, now))
	mock.ExpectQuery("SELECT .+ FROM pulse_preferences").
		WithArgs("u2").
		WillReturnError(sql.ErrNoRows)

	prefs, err := p.SavePreferences(ctx, "u1", "Mumbai", []models.Category{models.CategoryTechMeetups})
	require.NoError(t, err)
	assert.Equal(t, []models.Category{models.CategoryTechMeetups}, prefs.SelectedPulses)
	assert.True(t, prefs.OnboardingCompleted)

	_, err = p.GetPreferences(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotFound)
	expectationsMet(t, mock)
}
