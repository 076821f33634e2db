package models

import (
	"fmt"
	"strings"
)

var DefaultCities = []string{"Chennai", "Mumbai", "Bangalore", "Delhi"}

// Cities is the fixed list of cities ingestion and the feed operate on.
type Cities []string

// Resolve returns the canonical spelling of city, matching case-insensitively.
func (cs Cities) Resolve(city string) (string, error) {
	needle := strings.TrimSpace(city)
	for _, c := range cs {
		if strings.EqualFold(c, needle) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedCity, city)
}

func (cs Cities) Contains(city string) bool {
	_, err := cs.Resolve(city)
	return err == nil
}
