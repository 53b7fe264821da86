// Package countries reads the country list from the REST countries API
// and caches it.
package countries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/flaggy/internal/domain/country"
)

// DefaultBaseURL is the public REST countries v3.1 endpoint.
const DefaultBaseURL = "https://restcountries.com/v3.1"

const fields = "name,flags,cca3,region,subregion,population"

// ErrUnavailable means the data source could not deliver a country list.
var ErrUnavailable = errors.New("country data unavailable")

// Source delivers the full country list.
type Source interface {
	FetchAll(ctx context.Context) ([]country.Country, error)
}

// Client talks to the REST countries API.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// NewClient returns a client for baseURL; empty uses DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll implements Source. Entries without a cca3 code are dropped.
func (c *Client) FetchAll(ctx context.Context) ([]country.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/all?fields="+fields, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload []country.Country
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnavailable, err)
	}
	out := payload[:0]
	for _, ct := range payload {
		if ct.CCA3 != "" {
			out = append(out, ct)
		}
	}
	return out, nil
}
