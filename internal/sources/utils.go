package sources

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/ObiAU/citypulse/internal/models"
)

const (
	maxTitleRunes       = 160
	maxDescriptionRunes = 1200
)

// cleanText strips markup from scraped text, collapses whitespace and
// bounds its length.
func cleanText(s string, maxRunes int) string {
	if strings.ContainsRune(s, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes > 0 && utf8.RuneCountInString(s) > maxRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:maxRunes-1])) + "…"
	}
	return s
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringList(r gjson.Result) []string {
	if r.IsArray() {
		var out []string
		for _, v := range r.Array() {
			if s := strings.TrimSpace(v.String()); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	if s := strings.TrimSpace(r.String()); s != "" {
		return []string{s}
	}
	return nil
}

// hostLabel turns https://www.zomato.com/x into "zomato.com".
func hostLabel(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func mentionsCity(item models.RawItem, city string) bool {
	needle := strings.ToLower(city)
	for _, s := range []string{item.Title, item.Description, item.Location, item.SourceURL} {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
