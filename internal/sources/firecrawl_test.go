package sources

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *FirecrawlClient {
	return NewFirecrawlClient(FirecrawlOptions{
		APIKey:     "fc-test",
		BaseURL:    url,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
}

func TestFirecrawlSearch_SendsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/search", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{"web":[
			{"url":"https://www.zomato.com/chennai/x","title":"Top places","description":"desc","json":{"restaurants":[{"name":"A"}]}},
			{"metadata":{"sourceURL":"https://example.com/y","title":"Meta title"}}
		]}}`)
	}))
	defer srv.Close()

	results, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{
		Query:    "restaurants in Chennai",
		Location: "Chennai, India",
		Limit:    10,
		Recency:  "qdr:w",
		Prompt:   "extract",
		Schema:   map[string]any{"type": "object"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://www.zomato.com/chennai/x", results[0].URL)
	assert.Equal(t, "A", results[0].Payload.Get("restaurants.0.name").String())
	assert.Equal(t, "https://example.com/y", results[1].URL)
	assert.Equal(t, "Meta title", results[1].Title)
	assert.False(t, results[1].Payload.Exists())

	assert.Equal(t, "restaurants in Chennai", got["query"])
	assert.Equal(t, "qdr:w", got["tbs"])
	assert.Equal(t, "Chennai, India", got["location"])
	formats := got["scrapeOptions"].(map[string]any)["formats"].([]any)
	assert.Equal(t, "json", formats[0].(map[string]any)["type"])
}

func TestFirecrawlSearch_AcceptsBareDataArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":[{"url":"https://a.com","title":"A"}]}`)
	}))
	defer srv.Close()

	results, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Title)
}

func TestFirecrawlSearch_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"success":true,"data":{"web":[]}}`)
	}))
	defer srv.Close()

	results, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFirecrawlSearch_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFirecrawlSearch_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"error":"bad key"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFirecrawlSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>gateway</html>`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestFirecrawlSearch_ReportsUnsuccessfulPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"quota exceeded"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Search(context.Background(), SearchRequest{Query: "q"})
	require.ErrorIs(t, err, ErrSearchFailed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestFirecrawlClient_Configured(t *testing.T) {
	assert.False(t, NewFirecrawlClient(FirecrawlOptions{}).Configured())
	assert.True(t, NewFirecrawlClient(FirecrawlOptions{APIKey: "k"}).Configured())

	var nilClient *FirecrawlClient
	assert.False(t, nilClient.Configured())
}
