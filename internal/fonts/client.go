package fonts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

const defaultURL = "https://www.googleapis.com/webfonts/v1/webfonts"

// Client fetches the font family list from the Google Fonts developer API.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a font list client. If baseURL is empty, it defaults to
// the public webfonts endpoint.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return &Client{
		url:    baseURL,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Families returns the family name of every font in the catalog, in the
// order the API lists them.
func (c *Client) Families(ctx context.Context) ([]string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse fonts url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON in fonts response")
	}
	items := gjson.GetBytes(body, "items")
	if !items.IsArray() {
		return nil, fmt.Errorf("fonts response has no items")
	}

	families := make([]string, 0, len(items.Array()))
	for _, family := range gjson.GetBytes(body, "items.#.family").Array() {
		families = append(families, family.String())
	}
	return families, nil
}
