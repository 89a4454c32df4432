package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vitalsup/internal/openaccess"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// maxPageBytes bounds how much of a page is read for a snapshot.
const maxPageBytes = 10 << 20

// Snapshot is the readable part of an article page.
type Snapshot struct {
	Title   string
	Content string
	Excerpt string
	DOI     string
}

// Scraper defines the interface for downloading web pages.
// This allows us to mock the "Download" step in tests.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*Snapshot, error)
}

// DefaultScraper is the real implementation that uses the internet
type DefaultScraper struct {
	client *http.Client
	policy *bluemonday.Policy
}

func NewDefaultScraper(timeout time.Duration) *DefaultScraper {
	return &DefaultScraper{
		client: &http.Client{Timeout: timeout},
		policy: bluemonday.UGCPolicy(),
	}
}

func (s *DefaultScraper) Scrape(ctx context.Context, pageURL string) (*Snapshot, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch page: unexpected status %s", resp.Status)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}

	return s.parse(page, parsedURL)
}

func (s *DefaultScraper) parse(page []byte, pageURL *url.URL) (*Snapshot, error) {
	art, err := readability.FromReader(bytes.NewReader(page), pageURL)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}

	snap := &Snapshot{
		Title:   art.Title,
		Content: s.policy.Sanitize(art.Content),
		Excerpt: art.Excerpt,
	}

	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page)); err == nil {
		snap.DOI = metaDOI(doc)
	}
	if snap.DOI == "" {
		snap.DOI, _ = openaccess.ExtractDOI(pageURL.String())
	}
	return snap, nil
}

// metaDOI reads the DOI publishers embed for citation managers.
func metaDOI(doc *goquery.Document) string {
	for _, sel := range []string{
		`meta[name="citation_doi"]`,
		`meta[name="dc.identifier"]`,
		`meta[name="DC.identifier"]`,
		`meta[name="prism.doi"]`,
	} {
		content := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
		if doi, ok := openaccess.ExtractDOI(content); ok {
			return doi
		}
	}
	return ""
}
