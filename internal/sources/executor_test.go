package sources

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ObiAU/citypulse/internal/models"
)

type fakeSearcher struct {
	configured bool
	results    []SearchResult
	err        error
	requests   []SearchRequest
}

func (f *fakeSearcher) Configured() bool { return f.configured }

func (f *fakeSearcher) Search(_ context.Context, req SearchRequest) ([]SearchResult, error) {
	f.requests = append(f.requests, req)
	return f.results, f.err
}

func mustPolicy(t *testing.T, c models.Category) Policy {
	t.Helper()
	p, ok := PolicyFor(c)
	require.True(t, ok)
	return p
}

func TestScrape_NoCredentialServesDemo(t *testing.T) {
	for _, p := range DefaultPolicies() {
		env := NewExecutor(&fakeSearcher{}, ExecutorOptions{}, nil).Scrape(context.Background(), "Delhi", p)
		assert.True(t, env.Success, p.Category)
		assert.Equal(t, models.ProvenanceDemo, env.Source, p.Category)
		assert.Len(t, env.Items, len(p.Demo("Delhi")), p.Category)
		assert.NoError(t, env.Err)
		assert.False(t, env.Live())
	}

	env := NewExecutor(nil, ExecutorOptions{}, nil).Scrape(context.Background(), "Delhi", mustPolicy(t, models.CategoryRestaurants))
	assert.Equal(t, models.ProvenanceDemo, env.Source)
}

func TestScrape_BuildsSearchRequest(t *testing.T) {
	s := &fakeSearcher{configured: true}
	NewExecutor(s, ExecutorOptions{Limit: 50}, nil).Scrape(context.Background(), "Mumbai", mustPolicy(t, models.CategoryTechMeetups))

	require.Len(t, s.requests, 1)
	req := s.requests[0]
	assert.Contains(t, req.Query, "Mumbai")
	assert.NotContains(t, req.Query, "{city}")
	assert.Equal(t, "Mumbai, India", req.Location)
	assert.Equal(t, MaxSearchLimit, req.Limit)
	assert.Equal(t, DefaultRecency, req.Recency)
	assert.Contains(t, req.Prompt, "Mumbai")
	assert.NotNil(t, req.Schema)
}

func TestScrape_ErrorFallsBackToDemo(t *testing.T) {
	boom := errors.New("boom")
	s := &fakeSearcher{configured: true, err: boom}
	p := mustPolicy(t, models.CategoryApartmentHunt)

	env := NewExecutor(s, ExecutorOptions{}, nil).Scrape(context.Background(), "Bangalore", p)
	assert.True(t, env.Success)
	assert.Equal(t, models.ProvenanceDemoFallback, env.Source)
	assert.ErrorIs(t, env.Err, boom)
	assert.Len(t, env.Items, len(p.Demo("Bangalore")))
}

func TestScrape_EmptyResultsFallBackToDemo(t *testing.T) {
	s := &fakeSearcher{configured: true}
	p := mustPolicy(t, models.CategoryRestaurants)

	env := NewExecutor(s, ExecutorOptions{}, nil).Scrape(context.Background(), "Chennai", p)
	assert.True(t, env.Success)
	assert.Equal(t, models.ProvenanceDemoFallback, env.Source)
	assert.ErrorIs(t, env.Err, ErrNoResults)
	assert.Len(t, env.Items, 4)
}

func TestScrape_StructuredAndLoosePaths(t *testing.T) {
	s := &fakeSearcher{configured: true, results: []SearchResult{
		{
			URL:   "https://allevents.in/chennai",
			Title: "Chennai events",
			Payload: gjson.Parse(`{"events":[
				{"name":"Jazz <b>Night</b>","date":"Sat 8 PM","venue":"Phoenix","category":"Music","ticketPrice":"₹500"},
				{"name":"   ","date":"Sun"},
				{"name":"Startup Mixer","date":"Sun 5 PM","description":"Meet founders"}
			]}`),
		},
		{
			URL:         "https://www.insider.in/chennai",
			Title:       "Weekend   plans in Chennai",
			Description: "<p>Things to do</p>",
			Payload:     gjson.Parse(`{"events":[]}`),
		},
	}}

	env := NewExecutor(s, ExecutorOptions{}, nil).Scrape(context.Background(), "Chennai", mustPolicy(t, models.CategoryWeekendEvents))
	require.True(t, env.Live())
	require.Len(t, env.Items, 3)

	first := env.Items[0]
	assert.Equal(t, "Jazz Night", first.Title)
	assert.Equal(t, "Sat 8 PM", first.EventDate)
	assert.Equal(t, "Phoenix", first.Venue)
	assert.Equal(t, "Music", first.EventCategory)
	assert.Equal(t, "allevents.in", first.Source)
	assert.Equal(t, "Music event in Chennai", first.Description)

	assert.Equal(t, "Startup Mixer", env.Items[1].Title)
	assert.Equal(t, "Meet founders", env.Items[1].Description)

	loose := env.Items[2]
	assert.Equal(t, "Weekend plans in Chennai", loose.Title)
	assert.Equal(t, "Things to do", loose.Description)
	assert.Equal(t, "insider.in", loose.Source)
	assert.Contains(t, loose.Tags, "chennai")
}

func TestScrape_NewsFilterDropsOtherCities(t *testing.T) {
	s := &fakeSearcher{configured: true, results: []SearchResult{{
		URL: "https://news.example.com/today",
		Payload: gjson.Parse(`{"news":[
			{"headline":"Pune rains","summary":"Heavy rain in Pune"},
			{"headline":"Metro line opens","summary":"New line in DELHI opens"}
		]}`),
	}}}

	env := NewExecutor(s, ExecutorOptions{}, nil).Scrape(context.Background(), "Delhi", mustPolicy(t, models.CategoryLocalNews))
	require.True(t, env.Live())
	require.Len(t, env.Items, 1)
	assert.Equal(t, "Metro line opens", env.Items[0].Title)
	assert.Equal(t, "Local News", env.Items[0].EventCategory)
}

func TestScrape_FilterRemovingEverythingFallsBack(t *testing.T) {
	s := &fakeSearcher{configured: true, results: []SearchResult{{
		URL:     "https://news.example.com/pune",
		Payload: gjson.Parse(`{"news":[{"headline":"Pune rains","summary":"Heavy rain"}]}`),
	}}}

	env := NewExecutor(s, ExecutorOptions{}, nil).Scrape(context.Background(), "Delhi", mustPolicy(t, models.CategoryLocalNews))
	assert.Equal(t, models.ProvenanceDemoFallback, env.Source)
	assert.ErrorIs(t, env.Err, ErrNoResults)
}

func TestRestaurantTransform_MapsFacets(t *testing.T) {
	p := mustPolicy(t, models.CategoryRestaurants)
	item := p.Transform(
		gjson.Parse(`{"name":"Dosa Camp","cuisine":"South Indian","priceRange":"₹","rating":4.6}`),
		SearchResult{URL: "https://www.zomato.com/bangalore"},
		"Bangalore",
	)

	assert.Equal(t, "Dosa Camp", item.Title)
	assert.Equal(t, "South Indian restaurant in Bangalore", item.Description)
	require.NotNil(t, item.Rating)
	assert.InDelta(t, 4.6, *item.Rating, 0.001)
	assert.Equal(t, "zomato.com", item.Source)
	assert.Equal(t, "https://www.zomato.com/bangalore", item.SourceURL)
}

func TestApartmentTransform_JoinsAmenities(t *testing.T) {
	p := mustPolicy(t, models.CategoryApartmentHunt)
	item := p.Transform(
		gjson.Parse(`{"name":"Sea View","rent":"₹40,000","bedrooms":"2BHK","amenities":["Gym","Pool"]}`),
		SearchResult{URL: "https://www.99acres.com/x"},
		"Mumbai",
	)

	assert.Equal(t, "Gym, Pool", item.Amenities)
	assert.Equal(t, "2BHK apartment in Mumbai", item.Description)
}

func TestDemoData_IsDeterministicAndCitySpecific(t *testing.T) {
	for _, p := range DefaultPolicies() {
		a, b := p.Demo("Chennai"), p.Demo("Chennai")
		assert.Equal(t, a, b, p.Category)
		assert.NotEmpty(t, a, p.Category)
		assert.LessOrEqual(t, len(a), 5, p.Category)

		for _, item := range p.Demo("Mumbai") {
			assert.NotEmpty(t, item.Title)
			assert.Contains(t, item.Tags, "mumbai")
			assert.False(t, strings.Contains(item.Title+item.Description+item.Location, "Chennai"))
		}
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Hello world", cleanText("<div>Hello <em>world</em></div>", 0))
	assert.Equal(t, "a b c", cleanText("  a\n\tb   c ", 0))
	assert.Equal(t, "abcd…", cleanText("abcdefghij", 5))
}

func TestPolicyFor_Unknown(t *testing.T) {
	_, ok := PolicyFor(models.Category("nope"))
	assert.False(t, ok)
	assert.Len(t, DefaultPolicies(), len(models.AllCategories()))
}
