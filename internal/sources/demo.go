package sources

import (
	"fmt"
	"strings"

	"github.com/ObiAU/citypulse/internal/models"
)

// Demo sets are deterministic and never exceed the default per-category cap,
// so a demo run stores exactly len(Demo(city)) items.

func demoRestaurants(city string) []models.RawItem {
	return []models.RawItem{
		demoRestaurant(city, "The Filter Coffee House",
			"Neighbourhood cafe serving strong filter coffee and crisp dosas. A local favourite for slow breakfasts.",
			"Old Town", "South Indian", "₹", 4.2, "breakfast", "coffee"),
		demoRestaurant(city, "Spice Route Kitchen",
			"Regional thali restaurant rotating a different state's menu every week. Great for groups.",
			"Central Market", "Multi-cuisine", "₹₹", 4.0, "thali", "family"),
		demoRestaurant(city, "Biryani Junction",
			"Slow-cooked dum biryani with tender mutton and a smoky finish. Expect a queue on weekends.",
			"Station Road", "Biryani", "₹₹", 4.3, "biryani", "non-vegetarian"),
		demoRestaurant(city, "Coastal Catch",
			"Seafood grill with fresh catches and coastal curries. Rooftop seating with city views.",
			"Waterfront", "Seafood", "₹₹₹", 4.5, "seafood", "rooftop"),
	}
}

func demoRestaurant(city, name, desc, area, cuisine, price string, rating float64, tags ...string) models.RawItem {
	item := models.RawItem{
		Title:       name,
		Description: desc,
		Location:    fmt.Sprintf("%s, %s", area, city),
		Tags:        append(tags, strings.ToLower(city)),
	}
	item.Cuisine = cuisine
	item.PriceRange = price
	item.Rating = &rating
	return item
}

func demoWeekendEvents(city string) []models.RawItem {
	return []models.RawItem{
		demoEvent(city, city+" Music Festival",
			"Classical and indie performances across three stages with food stalls through the evening.",
			"Saturday, 6 PM", "City Auditorium", "Music", "Free", "music", "festival"),
		demoEvent(city, "Heritage Walk: Old "+city,
			"Guided morning walk through the historic quarter with stories of the city's oldest streets.",
			"Sunday, 7 AM", "Clock Tower", "Culture", "₹300", "heritage", "walk"),
		demoEvent(city, city+" Book Fair",
			"Independent publishers, author readings and a children's corner. Runs all weekend.",
			"Saturday and Sunday, 11 AM", "Exhibition Grounds", "Books", "₹50", "books", "literature"),
	}
}

func demoEvent(city, name, desc, date, venue, category, price string, tags ...string) models.RawItem {
	item := models.RawItem{
		Title:       name,
		Description: desc,
		Location:    fmt.Sprintf("%s, %s", venue, city),
		Tags:        append(append(tags, "weekend"), strings.ToLower(city)),
	}
	item.EventDate = date
	item.Venue = venue
	item.EventCategory = category
	item.TicketPrice = price
	return item
}

func demoLocalNews(city string) []models.RawItem {
	news := func(title, desc, category, published string) models.RawItem {
		item := models.RawItem{
			Title:       title,
			Description: desc,
			Location:    city,
			Tags:        []string{"news", "local", strings.ToLower(city)},
		}
		item.EventCategory = category
		item.PublishedTime = published
		return item
	}
	return []models.RawItem{
		news(city+" Metro Expansion Update",
			"Work on the next metro corridor has crossed the halfway mark, officials said on Monday.",
			"Infrastructure", "2 hours ago"),
		news(city+" Civic Body Announces Monsoon Plan",
			"Stormwater drains in low-lying wards will be desilted before the rains, the corporation said.",
			"Civic", "5 hours ago"),
		news("New Cycling Lanes Open in "+city,
			"A six-kilometre stretch of protected cycle lanes opened to the public this week.",
			"Transport", "1 day ago"),
	}
}

func demoApartments(city string) []models.RawItem {
	apt := func(title, desc, area, rent, bedrooms, size, amenities, furnishing string) models.RawItem {
		item := models.RawItem{
			Title:       title,
			Description: desc,
			Location:    fmt.Sprintf("%s, %s", area, city),
			Tags:        []string{"apartment", "rental", strings.ToLower(city)},
		}
		item.Rent = rent
		item.Bedrooms = bedrooms
		item.Area = size
		item.Amenities = amenities
		item.Furnishing = furnishing
		return item
	}
	return []models.RawItem{
		apt("Modern 2BHK Apartment", "Bright corner flat close to the metro with covered parking.",
			"Central", "₹25,000/month", "2BHK", "1100 sq ft", "Parking, Lift, Power backup", "Semi-furnished"),
		apt("Compact 1BHK Studio", "Ideal for working professionals. Walking distance to the tech park.",
			"Tech Park Road", "₹14,000/month", "1BHK", "600 sq ft", "Security, Lift", "Furnished"),
		apt("Spacious 3BHK Family Home", "Gated community with a play area, gym and pool.",
			"Lakeside", "₹42,000/month", "3BHK", "1650 sq ft", "Gym, Pool, Clubhouse", "Unfurnished"),
	}
}

func demoTechMeetups(city string) []models.RawItem {
	meetup := func(title, desc, date, venue, topic, kind, organizer string) models.RawItem {
		item := models.RawItem{
			Title:       title,
			Description: desc,
			Location:    fmt.Sprintf("%s, %s", venue, city),
			Tags:        []string{"tech", "meetup", strings.ToLower(city)},
		}
		item.EventDate = date
		item.Venue = venue
		item.Topic = topic
		item.EventCategory = kind
		item.Organizer = organizer
		item.TicketPrice = "Free"
		return item
	}
	return []models.RawItem{
		meetup("GDG "+city+" Monthly Meetup", "Talks on the latest Google developer tools and web platform updates.",
			"Saturday, 10 AM", "Innovation Hub", "Web Development", "Meetup", "GDG "+city),
		meetup(city+" Gophers: Concurrency Night", "Lightning talks and a hands-on session on Go concurrency patterns.",
			"Thursday, 7 PM", "Startup Co-working Space", "Go", "Meetup", city+" Gophers"),
		meetup("AI Builders Workshop", "Build and deploy a small retrieval app in an afternoon. Bring a laptop.",
			"Sunday, 2 PM", "University Auditorium", "AI/ML", "Workshop", "AI Builders "+city),
	}
}
