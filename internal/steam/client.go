package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned when the store has no listing for an app id.
	ErrNotFound = errors.New("steam: app not found")
	// ErrRateLimited is returned when the store responds with HTTP 429.
	ErrRateLimited = errors.New("steam: rate limited")
)

// App is a Steam store listing.
type App struct {
	AppID       int64          `json:"steam_appid"`
	Name        string         `json:"name"`
	IsFree      bool           `json:"is_free"`
	Description string         `json:"short_description"`
	HeaderImage string         `json:"header_image"`
	Price       *PriceOverview `json:"price_overview"`
	Release     ReleaseDate    `json:"release_date"`
}

// ComingSoon reports whether the app has not been released yet.
func (a *App) ComingSoon() bool {
	return a.Release.ComingSoon
}

// PriceOverview holds the current pricing of a paid app.
type PriceOverview struct {
	DiscountPercent  int    `json:"discount_percent"`
	InitialFormatted string `json:"initial_formatted"`
	FinalFormatted   string `json:"final_formatted"`
}

// ReleaseDate holds release information for an app.
type ReleaseDate struct {
	ComingSoon bool `json:"coming_soon"`
}

// SearchResult is a single hit from the community app search.
type SearchResult struct {
	AppID int64
	Name  string
}

// Client is a Steam storefront/community API client
type Client struct {
	httpClient *http.Client

	// Base url for the store endpoint
	storeBase string
	// Base url for the community endpoint
	communityBase string
}

// NewClient creates a new Steam API client
func NewClient(storeBase, communityBase string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		storeBase:     storeBase,
		communityBase: communityBase,
	}
}

// appDetailsEntry is the per-app envelope of the appdetails response.
type appDetailsEntry struct {
	Success bool `json:"success"`
	Data    *App `json:"data"`
}

// AppDetails fetches the current store listing for an app.
// Returns ErrNotFound when the store reports no listing for the id and
// ErrRateLimited when the request was throttled.
func (c *Client) AppDetails(ctx context.Context, appID int64) (*App, error) {
	id := strconv.FormatInt(appID, 10)

	endpoint := fmt.Sprintf("%s/api/appdetails", c.storeBase)
	query := url.Values{
		"filters": {"basic,price_overview,release_date"},
		"cc":      {"US"},
		"appids":  {id},
	}

	var body map[string]appDetailsEntry
	if err := c.get(ctx, endpoint+"?"+query.Encode(), &body); err != nil {
		return nil, fmt.Errorf("failed to get app details for %s: %w", id, err)
	}

	entry, ok := body[id]
	if !ok {
		return nil, fmt.Errorf("app %s missing from appdetails response", id)
	}
	if !entry.Success || entry.Data == nil {
		return nil, ErrNotFound
	}

	return entry.Data, nil
}

// SearchApps searches the community store for apps matching the query
func (c *Client) SearchApps(ctx context.Context, query string) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("%s/actions/SearchApps/%s", c.communityBase, url.PathEscape(query))

	// The community endpoint serializes appid as a string
	var raw []struct {
		AppID string `json:"appid"`
		Name  string `json:"name"`
	}
	if err := c.get(ctx, endpoint, &raw); err != nil {
		return nil, fmt.Errorf("failed to search apps: %w", err)
	}

	results := make([]SearchResult, 0, len(raw))
	for _, hit := range raw {
		id, err := strconv.ParseInt(hit.AppID, 10, 64)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{AppID: id, Name: hit.Name})
	}

	return results, nil
}

// get performs a GET request and decodes the JSON response
func (c *Client) get(ctx context.Context, url string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
