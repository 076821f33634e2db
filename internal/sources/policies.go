package sources

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ObiAU/citypulse/internal/models"
)

// Policy describes how one category is searched, extracted and mapped.
type Policy struct {
	Category models.Category
	// Query may contain {city}.
	Query   string
	Prompt  string
	DataKey string
	Schema  map[string]any

	Transform func(item gjson.Result, result SearchResult, city string) models.RawItem
	Fallback  func(result SearchResult, city string) models.RawItem
	// Filter is optional; items it rejects are dropped.
	Filter func(item models.RawItem, city string) bool
	Demo   func(city string) []models.RawItem
}

func (p Policy) QueryFor(city string) string {
	return strings.ReplaceAll(p.Query, "{city}", city)
}

func (p Policy) PromptFor(city string) string {
	return strings.ReplaceAll(p.Prompt, "{city}", city)
}

type field struct {
	name, description string
}

// arraySchema builds {key: [{fields...}]} with required fields.
func arraySchema(key string, fields []field, required ...string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.name] = map[string]any{"type": "string", "description": f.description}
	}
	if _, ok := props["rating"]; ok {
		props["rating"] = map[string]any{"type": "number", "description": "Rating out of 5"}
	}
	if _, ok := props["tags"]; ok {
		props["tags"] = map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			key: map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		},
		"required": []string{key},
	}
}

func defaultTags(city string, tags ...string) []string {
	return append(tags, strings.ToLower(city))
}

func mergeTags(extracted []string, fallback []string) []string {
	if len(extracted) > 0 {
		return extracted
	}
	return fallback
}

// looseFallback builds a single item from a result that carried no usable
// structured payload.
func looseFallback(category models.Category, tags ...string) func(SearchResult, string) models.RawItem {
	return func(r SearchResult, city string) models.RawItem {
		desc := r.Description
		if desc == "" {
			desc = fmt.Sprintf("%s in %s", category.DisplayName(), city)
		}
		return models.RawItem{
			Title:       r.Title,
			Description: desc,
			Location:    city,
			Source:      hostLabel(r.URL),
			SourceURL:   r.URL,
			Tags:        defaultTags(city, tags...),
		}
	}
}

func itemURL(item gjson.Result, r SearchResult) string {
	if u := firstString(item, "url", "link"); u != "" {
		return u
	}
	return r.URL
}

var restaurantsPolicy = Policy{
	Category: models.CategoryRestaurants,
	Query:    "new restaurants cafes opening in {city} reviews",
	Prompt:   "Extract restaurants in {city} with name, area, cuisine, price range, rating and a short description.",
	DataKey:  "restaurants",
	Schema: arraySchema("restaurants", []field{
		{"name", "Restaurant name"},
		{"description", "Short description"},
		{"location", "Area or neighbourhood"},
		{"cuisine", "Cuisine type"},
		{"priceRange", "Price range such as ₹, ₹₹ or ₹₹₹"},
		{"rating", ""},
		{"url", "Link to the restaurant page"},
	}, "name"),
	Transform: func(item gjson.Result, r SearchResult, city string) models.RawItem {
		raw := models.RawItem{
			Title:       firstString(item, "name", "title"),
			Description: firstString(item, "description", "summary"),
			Location:    firstString(item, "location", "area"),
			Source:      hostLabel(r.URL),
			SourceURL:   itemURL(item, r),
			Tags:        mergeTags(stringList(item.Get("tags")), defaultTags(city, "restaurant", "food")),
		}
		raw.Cuisine = firstString(item, "cuisine")
		raw.PriceRange = firstString(item, "priceRange", "price")
		if v := item.Get("rating"); v.Exists() && v.Float() > 0 {
			rating := v.Float()
			raw.Rating = &rating
		}
		if raw.Description == "" && raw.Cuisine != "" {
			raw.Description = fmt.Sprintf("%s restaurant in %s", raw.Cuisine, city)
		}
		return raw
	},
	Fallback: looseFallback(models.CategoryRestaurants, "restaurant", "food"),
	Demo:     demoRestaurants,
}

var weekendEventsPolicy = Policy{
	Category: models.CategoryWeekendEvents,
	Query:    "events happening this weekend in {city} concerts festivals workshops",
	Prompt:   "Extract upcoming weekend events in {city} with name, date, venue, category, organizer, ticket price and description.",
	DataKey:  "events",
	Schema: arraySchema("events", []field{
		{"name", "Event name"},
		{"date", "Event date and time"},
		{"venue", "Venue"},
		{"description", "Event description"},
		{"category", "Event category such as music, party or workshop"},
		{"ticketPrice", "Ticket price or free"},
		{"organizer", "Organizer"},
		{"url", "Event page link"},
	}, "name", "date"),
	Transform: func(item gjson.Result, r SearchResult, city string) models.RawItem {
		raw := models.RawItem{
			Title:       firstString(item, "name", "title"),
			Description: firstString(item, "description"),
			Location:    firstString(item, "venue", "location"),
			Source:      hostLabel(r.URL),
			SourceURL:   itemURL(item, r),
			Tags:        mergeTags(stringList(item.Get("tags")), defaultTags(city, "weekend", "event")),
		}
		raw.EventDate = firstString(item, "date", "eventDate")
		raw.Venue = firstString(item, "venue")
		raw.EventCategory = firstString(item, "category")
		raw.Organizer = firstString(item, "organizer")
		raw.TicketPrice = firstString(item, "ticketPrice", "price")
		if raw.Description == "" {
			category := raw.EventCategory
			if category == "" {
				category = "Weekend"
			}
			raw.Description = fmt.Sprintf("%s event in %s", category, city)
		}
		return raw
	},
	Fallback: looseFallback(models.CategoryWeekendEvents, "weekend", "event"),
	Demo:     demoWeekendEvents,
}

var localNewsPolicy = Policy{
	Category: models.CategoryLocalNews,
	Query:    "{city} city news today",
	Prompt:   "Extract recent local news stories about {city} with headline, summary, category, published time and area.",
	DataKey:  "news",
	Schema: arraySchema("news", []field{
		{"headline", "News headline"},
		{"summary", "Brief summary"},
		{"category", "News category such as civic, traffic or politics"},
		{"publishedTime", "When it was published"},
		{"location", "Area of the city if mentioned"},
		{"url", "Article link"},
	}, "headline", "summary"),
	Transform: func(item gjson.Result, r SearchResult, city string) models.RawItem {
		raw := models.RawItem{
			Title:       firstString(item, "headline", "title"),
			Description: firstString(item, "summary", "description"),
			Location:    firstString(item, "location"),
			Source:      hostLabel(r.URL),
			SourceURL:   itemURL(item, r),
			Tags:        mergeTags(stringList(item.Get("tags")), defaultTags(city, "news", "local")),
		}
		raw.EventCategory = firstString(item, "category")
		if raw.EventCategory == "" {
			raw.EventCategory = "Local News"
		}
		raw.PublishedTime = firstString(item, "publishedTime", "published", "date")
		return raw
	},
	Fallback: looseFallback(models.CategoryLocalNews, "news", "local"),
	// Generic search leaks national stories; keep only ones that name the city.
	Filter: mentionsCity,
	Demo:   demoLocalNews,
}

var apartmentHuntPolicy = Policy{
	Category: models.CategoryApartmentHunt,
	Query:    "apartments flats for rent in {city} 1BHK 2BHK 3BHK",
	Prompt:   "Extract apartment rental listings in {city} with name, locality, monthly rent, bedrooms, area, amenities, furnishing and description.",
	DataKey:  "apartments",
	Schema: arraySchema("apartments", []field{
		{"name", "Property or building name"},
		{"location", "Locality"},
		{"rent", "Monthly rent"},
		{"bedrooms", "Bedrooms such as 1BHK or 2BHK"},
		{"area", "Area in square feet"},
		{"amenities", "Key amenities"},
		{"furnishing", "Furnished, semi-furnished or unfurnished"},
		{"description", "Listing description"},
		{"url", "Listing link"},
	}, "name", "rent"),
	Transform: func(item gjson.Result, r SearchResult, city string) models.RawItem {
		raw := models.RawItem{
			Title:       firstString(item, "name", "title"),
			Description: firstString(item, "description"),
			Location:    firstString(item, "location", "locality"),
			Source:      hostLabel(r.URL),
			SourceURL:   itemURL(item, r),
			Tags:        mergeTags(stringList(item.Get("tags")), defaultTags(city, "apartment", "rental")),
		}
		raw.Rent = firstString(item, "rent", "price")
		raw.Bedrooms = firstString(item, "bedrooms", "type")
		raw.Area = firstString(item, "area")
		raw.Amenities = strings.Join(stringList(item.Get("amenities")), ", ")
		raw.Furnishing = firstString(item, "furnishing")
		if raw.Description == "" {
			where := raw.Location
			if where == "" {
				where = city
			}
			raw.Description = strings.TrimSpace(fmt.Sprintf("%s apartment in %s", raw.Bedrooms, where))
		}
		return raw
	},
	Fallback: looseFallback(models.CategoryApartmentHunt, "apartment", "rental"),
	Demo:     demoApartments,
}

var techMeetupsPolicy = Policy{
	Category: models.CategoryTechMeetups,
	Query:    "tech meetups developer events in {city} GDG hackathon workshop",
	Prompt:   "Extract upcoming tech meetups, workshops and developer events in {city} with name, date, venue, topic, type, organizer and description.",
	DataKey:  "meetups",
	Schema: arraySchema("meetups", []field{
		{"name", "Meetup name"},
		{"date", "Date and time"},
		{"venue", "Venue"},
		{"topic", "Technology topic"},
		{"type", "Meetup, workshop or conference"},
		{"organizer", "Organizing group"},
		{"description", "Description"},
		{"registrationInfo", "Registration details or price"},
		{"url", "Event page link"},
	}, "name", "date"),
	Transform: func(item gjson.Result, r SearchResult, city string) models.RawItem {
		raw := models.RawItem{
			Title:       firstString(item, "name", "title"),
			Description: firstString(item, "description"),
			Location:    firstString(item, "venue", "location"),
			Source:      hostLabel(r.URL),
			SourceURL:   itemURL(item, r),
			Tags:        mergeTags(stringList(item.Get("tags")), defaultTags(city, "tech", "meetup")),
		}
		raw.EventDate = firstString(item, "date", "eventDate")
		raw.Venue = firstString(item, "venue")
		raw.Topic = firstString(item, "topic")
		raw.EventCategory = firstString(item, "type", "category")
		raw.Organizer = firstString(item, "organizer")
		raw.TicketPrice = firstString(item, "registrationInfo", "ticketPrice")
		if raw.Description == "" {
			topic := raw.Topic
			if topic == "" {
				topic = "Tech"
			}
			raw.Description = fmt.Sprintf("%s meetup in %s", topic, city)
		}
		return raw
	},
	Fallback: looseFallback(models.CategoryTechMeetups, "tech", "meetup"),
	Demo:     demoTechMeetups,
}

// DefaultPolicies returns the strategy table in ingestion order.
func DefaultPolicies() []Policy {
	return []Policy{
		restaurantsPolicy,
		weekendEventsPolicy,
		localNewsPolicy,
		apartmentHuntPolicy,
		techMeetupsPolicy,
	}
}

func PolicyFor(c models.Category) (Policy, bool) {
	for _, p := range DefaultPolicies() {
		if p.Category == c {
			return p, true
		}
	}
	return Policy{}, false
}
