package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ObiAU/citypulse/internal/feed"
	"github.com/ObiAU/citypulse/internal/ingest"
	"github.com/ObiAU/citypulse/internal/models"
)

func newTable(out io.Writer, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// renderReports prints one row per city and category, cities in the given order.
func renderReports(out io.Writer, cities []string, reports map[string]ingest.Report) {
	tw := newTable(out, table.Row{"City", "Category", "Provenance", "Processed", "Skipped", "Error"}, 4, 5)

	total, skipped := 0, 0
	for _, city := range cities {
		r, ok := reports[city]
		if !ok {
			continue
		}
		for _, c := range models.AllCategories() {
			cr, ok := r.Categories[c]
			if !ok {
				continue
			}
			tw.AppendRow(table.Row{city, string(c), string(cr.Provenance), cr.Processed, cr.Skipped, cr.Error})
		}
		total += r.Total
		skipped += r.Skipped
	}
	tw.AppendFooter(table.Row{"", "", "Total", total, skipped, ""})
	tw.Render()
}

func renderFeed(out io.Writer, items []feed.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No items.")
		return
	}

	tw := newTable(out, table.Row{"ID", "Category", "Title", "Location", "Provenance", "Scraped"})
	for _, it := range items {
		tw.AppendRow(table.Row{
			it.ID,
			string(it.Category),
			text.Trim(it.Title, 48),
			text.Trim(it.Location, 32),
			string(it.Provenance),
			it.ScrapedAt.Local().Format(time.DateTime),
		})
	}
	tw.Render()
}

func reportCities(reports map[string]ingest.Report) []string {
	cities := make([]string, 0, len(reports))
	for city := range reports {
		cities = append(cities, city)
	}
	slices.Sort(cities)
	return cities
}
