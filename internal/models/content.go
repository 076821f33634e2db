package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnsupportedCity = errors.New("unsupported city")
	ErrUnknownCategory = errors.New("unknown category")
	ErrMissingCity     = errors.New("record city is required")
	ErrMissingCategory = errors.New("record category is required")
	ErrMissingSummary  = errors.New("record summary is required")
)

// Category is a pulse identifier.
type Category string

const (
	CategoryRestaurants   Category = "restaurants"
	CategoryWeekendEvents Category = "weekend-events"
	CategoryLocalNews     Category = "local-news"
	CategoryApartmentHunt Category = "apartment-hunt"
	CategoryTechMeetups   Category = "tech-meetups"
)

// ContentType is the fine-grained record type derived from a category.
type ContentType string

const (
	ContentTypeRestaurant   ContentType = "restaurant"
	ContentTypeWeekendEvent ContentType = "weekend-event"
	ContentTypeNews         ContentType = "news"
	ContentTypeApartment    ContentType = "apartment"
	ContentTypeTechMeetup   ContentType = "tech-meetup"
)

type categoryInfo struct {
	contentType ContentType
	name        string
	source      string
	sourceURL   string // %s is the lower-cased city
}

var categories = map[Category]categoryInfo{
	CategoryRestaurants: {
		contentType: ContentTypeRestaurant,
		name:        "New Restaurants",
		source:      "TripAdvisor",
		sourceURL:   "https://www.tripadvisor.in/Search?q=restaurants+%s",
	},
	CategoryWeekendEvents: {
		contentType: ContentTypeWeekendEvent,
		name:        "Weekend Events",
		source:      "EventBrite",
		sourceURL:   "https://www.eventbrite.com/d/india--%s/events/",
	},
	CategoryLocalNews: {
		contentType: ContentTypeNews,
		name:        "Local News",
		source:      "Times of India",
		sourceURL:   "https://timesofindia.indiatimes.com/city/%s",
	},
	CategoryApartmentHunt: {
		contentType: ContentTypeApartment,
		name:        "Apartment Hunt",
		source:      "99acres",
		sourceURL:   "https://www.99acres.com/rent/residential-property/%s",
	},
	CategoryTechMeetups: {
		contentType: ContentTypeTechMeetup,
		name:        "Tech Meetups",
		source:      "GDG",
		sourceURL:   "https://gdg.community.dev/gdg-%s/",
	},
}

// AllCategories returns the five pulses in display order.
func AllCategories() []Category {
	return []Category{
		CategoryRestaurants,
		CategoryWeekendEvents,
		CategoryLocalNews,
		CategoryApartmentHunt,
		CategoryTechMeetups,
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

func (c Category) ContentType() ContentType {
	return categories[c].contentType
}

func (c Category) DisplayName() string {
	return categories[c].name
}

// DefaultSource is the site label used when an item does not carry one.
func (c Category) DefaultSource() string {
	if info, ok := categories[c]; ok {
		return info.source
	}
	return "Local Source"
}

func (c Category) DefaultSourceURL(city string) string {
	info, ok := categories[c]
	if !ok {
		return "https://example.com"
	}
	return fmt.Sprintf(info.sourceURL, strings.ToLower(strings.ReplaceAll(city, " ", "-")))
}

// Provenance tells live-extracted items apart from synthetic ones.
type Provenance string

const (
	ProvenanceSearchExtracted Provenance = "search_extracted"
	ProvenanceDemo            Provenance = "demo"
	ProvenanceDemoFallback    Provenance = "demo_fallback"
)

func (p Provenance) Live() bool {
	return p == ProvenanceSearchExtracted
}

// Facets holds the category specific optional attributes.
type Facets struct {
	// restaurants
	Cuisine    string   `json:"cuisine,omitempty" db:"cuisine"`
	PriceRange string   `json:"priceRange,omitempty" db:"price_range"`
	Rating     *float64 `json:"rating,omitempty" db:"rating"`

	// weekend events, tech meetups, news category
	EventDate     string `json:"eventDate,omitempty" db:"event_date"`
	Venue         string `json:"venue,omitempty" db:"venue"`
	EventCategory string `json:"category,omitempty" db:"event_category"`
	Organizer     string `json:"organizer,omitempty" db:"organizer"`
	TicketPrice   string `json:"ticketPrice,omitempty" db:"ticket_price"`
	Topic         string `json:"topic,omitempty" db:"topic"`

	// news
	PublishedTime string `json:"publishedTime,omitempty" db:"published_time"`

	// apartments
	Rent       string `json:"rent,omitempty" db:"rent"`
	Bedrooms   string `json:"bedrooms,omitempty" db:"bedrooms"`
	Area       string `json:"area,omitempty" db:"area"`
	Amenities  string `json:"amenities,omitempty" db:"amenities"`
	Furnishing string `json:"furnishing,omitempty" db:"furnishing"`
}

// ForContentType keeps only the facets that belong to ct.
func (f Facets) ForContentType(ct ContentType) Facets {
	switch ct {
	case ContentTypeRestaurant:
		return Facets{Cuisine: f.Cuisine, PriceRange: f.PriceRange, Rating: f.Rating}
	case ContentTypeWeekendEvent:
		return Facets{
			EventDate:     f.EventDate,
			Venue:         f.Venue,
			EventCategory: f.EventCategory,
			Organizer:     f.Organizer,
			TicketPrice:   f.TicketPrice,
		}
	case ContentTypeTechMeetup:
		return Facets{
			EventDate:     f.EventDate,
			Venue:         f.Venue,
			EventCategory: f.EventCategory,
			Organizer:     f.Organizer,
			TicketPrice:   f.TicketPrice,
			Topic:         f.Topic,
		}
	case ContentTypeNews:
		return Facets{EventCategory: f.EventCategory, PublishedTime: f.PublishedTime}
	case ContentTypeApartment:
		return Facets{
			Rent:       f.Rent,
			Bedrooms:   f.Bedrooms,
			Area:       f.Area,
			Amenities:  f.Amenities,
			Furnishing: f.Furnishing,
		}
	default:
		return Facets{}
	}
}

// RawItem is one normalized search or demo result before AI enhancement.
type RawItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Source      string   `json:"source,omitempty"`
	SourceURL   string   `json:"sourceUrl,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Facets
}

// ContentRecord is the canonical stored content item.
type ContentRecord struct {
	ID           string      `json:"id"`
	Category     Category    `json:"category"`
	City         string      `json:"city"`
	ContentType  ContentType `json:"contentType"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	AISummary    string      `json:"aiSummary"`
	Highlights   []string    `json:"highlights"`
	CallToAction string      `json:"callToAction"`
	LocalContext string      `json:"localContext"`
	Source       string      `json:"source"`
	SourceURL    string      `json:"sourceUrl"`
	Provenance   Provenance  `json:"provenance"`
	ScrapedAt    time.Time   `json:"scrapedAt"`
	Location     string      `json:"location,omitempty"`
	Tags         []string    `json:"tags"`
	Facets
}

// Validate checks the fields every stored record needs.
func (r *ContentRecord) Validate() error {
	if r.City == "" {
		return ErrMissingCity
	}
	if !r.Category.Valid() {
		return ErrMissingCategory
	}
	if strings.TrimSpace(r.AISummary) == "" {
		return ErrMissingSummary
	}
	return nil
}

// DisplaySummary prefers the AI summary over the raw description.
func (r *ContentRecord) DisplaySummary() string {
	if r.AISummary != "" {
		return r.AISummary
	}
	return r.Description
}

// Collection is a user's named list of saved content ids.
type Collection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Items       []string  `json:"items"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const DefaultCollectionName = "Saved Items"

// PulsePreferences is a user's chosen city and pulses.
type PulsePreferences struct {
	UserID              string     `json:"userId"`
	City                string     `json:"city"`
	SelectedPulses      []Category `json:"selectedPulses"`
	OnboardingCompleted bool       `json:"onboardingCompleted"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}
