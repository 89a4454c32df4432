package openaccess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.unpaywall.org"

var ErrMissingEmail = errors.New("unpaywall email not configured")

// UpstreamError is a non-2xx answer from Unpaywall.
type UpstreamError struct {
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Unpaywall API error: %s", e.Status)
}

// Location is one place a copy of the work can be read.
type Location struct {
	URL       *string `json:"url"`
	URLForPDF *string `json:"url_for_pdf"`
	License   *string `json:"license"`
}

// Record is the subset of an Unpaywall DOI object we read. IsOA is kept raw
// so that only a literal JSON true counts as open access.
type Record struct {
	DOI            *string         `json:"doi"`
	IsOA           json.RawMessage `json:"is_oa"`
	OAStatus       *string         `json:"oa_status"`
	BestOALocation *Location       `json:"best_oa_location"`
	Title          *string         `json:"title"`
	Year           *int            `json:"year"`
	PublishedYear  *int            `json:"published_year"`
	JournalName    *string         `json:"journal_name"`
	Journal        *string         `json:"journal"`
}

type ClientOptions struct {
	BaseURL string
	Email   string
	Timeout time.Duration
	// RequestsPerSecond caps outbound calls; zero means unlimited.
	RequestsPerSecond float64
}

// Client talks to the Unpaywall v2 API.
type Client struct {
	baseURL string
	email   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient requires a contact email; Unpaywall rejects anonymous calls.
func NewClient(opts ClientOptions) (*Client, error) {
	if strings.TrimSpace(opts.Email) == "" {
		return nil, ErrMissingEmail
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL: baseURL,
		email:   opts.Email,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
	}, nil
}

// Lookup fetches the Unpaywall record for doi.
func (c *Client) Lookup(ctx context.Context, doi string) (*Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	endpoint := c.baseURL + "/v2/" + doi + "?" + url.Values{"email": {c.email}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}
