package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client pulls codelist packages from a terminology service. It is used while authoring
// mapping specifications; transform and validate runs only read the local cache.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewClient creates a Client with retrying transport.
func NewClient(baseURL, token string) *Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: retryClient.StandardClient(),
	}
}

// Fetch downloads the named codelists. With no ids the whole package is requested.
// The service answers with a JSON Package document.
func (c *Client) Fetch(ctx context.Context, ids ...string) ([]*Codelist, error) {
	endpoint := c.BaseURL + "/codelists"
	if len(ids) > 0 {
		endpoint += "?ids=" + strings.Join(ids, ",")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create codelist request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch codelists: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("terminology service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var pkg Package
	if err := json.NewDecoder(resp.Body).Decode(&pkg); err != nil {
		return nil, fmt.Errorf("failed to decode codelist package: %w", err)
	}
	for _, cl := range pkg.Codelists {
		if err := cl.build(); err != nil {
			return nil, err
		}
	}
	return pkg.Codelists, nil
}
