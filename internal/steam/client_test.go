package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppDetailsParsesListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdetails", r.URL.Path)
		assert.Equal(t, "413150", r.URL.Query().Get("appids"))
		assert.Equal(t, "US", r.URL.Query().Get("cc"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"413150": {
				"success": true,
				"data": {
					"steam_appid": 413150,
					"name": "Stardew Valley",
					"is_free": false,
					"short_description": "A farming sim",
					"header_image": "https://example.com/header.jpg",
					"price_overview": {
						"discount_percent": 40,
						"initial_formatted": "$14.99",
						"final_formatted": "$8.99"
					},
					"release_date": {"coming_soon": false}
				}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	app, err := client.AppDetails(context.Background(), 413150)
	require.NoError(t, err)

	assert.Equal(t, int64(413150), app.AppID)
	assert.Equal(t, "Stardew Valley", app.Name)
	assert.False(t, app.IsFree)
	assert.False(t, app.ComingSoon())
	require.NotNil(t, app.Price)
	assert.Equal(t, 40, app.Price.DiscountPercent)
	assert.Equal(t, "$14.99", app.Price.InitialFormatted)
	assert.Equal(t, "$8.99", app.Price.FinalFormatted)
}

func TestAppDetailsUnpricedListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"999": {
				"success": true,
				"data": {
					"steam_appid": 999,
					"name": "Unreleased Game",
					"is_free": false,
					"release_date": {"coming_soon": true}
				}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	app, err := client.AppDetails(context.Background(), 999)
	require.NoError(t, err)

	assert.Nil(t, app.Price)
	assert.True(t, app.ComingSoon())
}

func TestAppDetailsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"12345": {"success": false}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	_, err := client.AppDetails(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppDetailsRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	_, err := client.AppDetails(context.Background(), 12345)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestAppDetailsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	_, err := client.AppDetails(context.Background(), 12345)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestSearchApps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/actions/SearchApps/stardew", r.URL.Path)

		// appid comes back as a string; non-numeric ids are dropped
		w.Write([]byte(`[
			{"appid": "413150", "name": "Stardew Valley"},
			{"appid": "1401590", "name": "Stardew Valley Soundtrack"},
			{"appid": "not-a-number", "name": "Broken Entry"}
		]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	results, err := client.SearchApps(context.Background(), "stardew")
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{AppID: 413150, Name: "Stardew Valley"}, results[0])
	assert.Equal(t, SearchResult{AppID: 1401590, Name: "Stardew Valley Soundtrack"}, results[1])
}

func TestSearchAppsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL)

	results, err := client.SearchApps(context.Background(), "nothing matches this")
	require.NoError(t, err)
	assert.Empty(t, results)
}
