// Package scrape defines the Scraper contract consumed by the research
// core (spec.md §6) plus an HTTP-based reference implementation that
// classifies failures into the retry.ErrorTag taxonomy.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/deepresearch/corerun/retry"
)

// Content is the fetched payload for one URL.
type Content struct {
	URL         string
	Title       string
	Content     string
	ContentType string
}

// Scraper is the capability contract for fetching a URL's content.
type Scraper interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (Content, error)
}

// HTTPScraper fetches pages directly over HTTP(S) and classifies failures
// so retry.Executor can decide whether to retry.
type HTTPScraper struct {
	client *http.Client
}

// NewHTTPScraper creates an HTTPScraper.
func NewHTTPScraper() *HTTPScraper {
	return &HTTPScraper{client: &http.Client{}}
}

func (s *HTTPScraper) Fetch(ctx context.Context, url string, timeout time.Duration) (Content, error) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Content{}, &retry.Classified{Tag: "PARSE_ERROR", Err: fmt.Errorf("scrape: build request: %w", err)}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Content{}, &retry.Classified{Tag: retry.TagTimeout, Err: err}
		}
		return Content{}, &retry.Classified{Tag: retry.TagNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Content{}, &retry.Classified{Tag: retry.TagNetwork, Err: err}
	}

	if resp.StatusCode >= 500 {
		return Content{}, &retry.Classified{Tag: retry.TagServerError, StatusCode: resp.StatusCode, Err: fmt.Errorf("scrape: server error %d", resp.StatusCode)}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return Content{}, &retry.Classified{Tag: retry.TagRateLimit, StatusCode: resp.StatusCode, Err: fmt.Errorf("scrape: rate limited")}
	}
	if resp.StatusCode >= 400 {
		return Content{}, &retry.Classified{Tag: "CLIENT_ERROR", StatusCode: resp.StatusCode, Err: fmt.Errorf("scrape: client error %d", resp.StatusCode)}
	}

	return Content{
		URL:         url,
		Content:     string(body),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
