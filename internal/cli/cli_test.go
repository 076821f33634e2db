package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiAU/citypulse/internal/config"
	"github.com/ObiAU/citypulse/internal/ingest"
	"github.com/ObiAU/citypulse/internal/models"
)

// isolate keeps the developer's environment out of config loading.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	for _, key := range []string{
		"FIRECRAWL_API_KEY", "GROQ_API_KEY", "TELEGRAM_BOT_TOKEN", "STORE_DRIVER",
		"DATABASE_URL", "DISPATCHER", "REDIS_ADDRESS", "SUPPORTED_CITIES",
		"INGEST_SCHEDULE", "MAX_ITEMS_PER_CATEGORY", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nlog:\n  level: error\n"), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath := isolate(t)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", configPath))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestCommand_SingleCityServesDemo(t *testing.T) {
	out, err := run(t, "ingest", "chennai")
	require.NoError(t, err)

	assert.Contains(t, out, "Chennai")
	for _, c := range models.AllCategories() {
		assert.Contains(t, out, string(c))
	}
	assert.Contains(t, out, string(models.ProvenanceDemo))
	assert.NotContains(t, out, "Mumbai")
}

func TestIngestCommand_AllCities(t *testing.T) {
	out, err := run(t, "ingest")
	require.NoError(t, err)
	for _, city := range models.DefaultCities {
		assert.Contains(t, out, city)
	}
}

func TestIngestCommand_UnsupportedCity(t *testing.T) {
	_, err := run(t, "ingest", "Paris")
	require.ErrorIs(t, err, models.ErrUnsupportedCity)
}

func TestFeedCommand_RefreshThenQuery(t *testing.T) {
	out, err := run(t, "feed", "--city", "Mumbai", "--pulses", "tech-meetups", "--refresh", "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "tech-meetups")
	assert.NotContains(t, out, "restaurants")
}

func TestFeedCommand_EmptyStore(t *testing.T) {
	out, err := run(t, "feed", "--city", "Delhi")
	require.NoError(t, err)
	assert.Contains(t, out, "No items.")
}

func TestFeedCommand_RequiresCity(t *testing.T) {
	_, err := run(t, "feed")
	require.Error(t, err)
}

func TestWorkerCommand_RequiresRedis(t *testing.T) {
	_, err := run(t, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.address")
}

func TestRenderReports_FollowsCityOrder(t *testing.T) {
	reports := map[string]ingest.Report{
		"Delhi": {City: "Delhi", Total: 1, Categories: map[models.Category]ingest.CategoryReport{
			models.CategoryLocalNews: {Processed: 1, Provenance: models.ProvenanceDemo},
		}},
		"Mumbai": {City: "Mumbai", Total: 2, Skipped: 1, Categories: map[models.Category]ingest.CategoryReport{
			models.CategoryRestaurants: {Processed: 2, Skipped: 1, Provenance: models.ProvenanceSearchExtracted},
		}},
	}

	var out bytes.Buffer
	renderReports(&out, []string{"Mumbai", "Delhi", "Chennai"}, reports)
	text := out.String()

	assert.Less(t, bytes.Index(out.Bytes(), []byte("Mumbai")), bytes.Index(out.Bytes(), []byte("Delhi")))
	assert.Contains(t, text, "search_extracted")
	assert.NotContains(t, text, "Chennai")
	assert.Equal(t, []string{"Delhi", "Mumbai"}, reportCities(reports))
}

func TestAIOptions_CarriesRetriesAndTemperature(t *testing.T) {
	cfg := config.Default()
	cfg.AI.Retries = 4
	cfg.AI.Temperature = 0

	opts := aiOptions(cfg.AI)
	assert.Equal(t, 4, opts.MaxRetries)
	assert.Zero(t, opts.Temperature)
	assert.Equal(t, cfg.AI.Model, opts.Model)
	assert.Equal(t, cfg.AI.Timeout, opts.Timeout)
}
