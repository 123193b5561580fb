package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultFeedTimeout = 30 * time.Second
	rssUserAgent       = "Mozilla/5.0 (compatible; rssnotify/1.0; +https://github.com/ppiankov/rssnotify)"
	rssMaxRetries      = 3
)

// RSSSource fetches entries from RSS/Atom/JSON feeds.
type RSSSource struct {
	timeout time.Duration
	client  *http.Client
}

// NewRSS creates a feed source. A non-positive timeout selects DefaultFeedTimeout.
func NewRSS(timeout time.Duration) *RSSSource {
	if timeout <= 0 {
		timeout = DefaultFeedTimeout
	}
	return &RSSSource{
		timeout: timeout,
		client: &http.Client{
			Timeout:   timeout,
			Transport: &rssTransport{base: http.DefaultTransport},
		},
	}
}

// Fetch downloads and parses feedURL. Any failure is returned as a *FetchError.
func (rs *RSSSource) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, &FetchError{URL: feedURL, Err: errors.New("feed URL is required")}
	}
	entries, err := rs.fetchWithRetry(ctx, feedURL)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}
	return entries, nil
}

// rssTransport injects a User-Agent header into every request.
type rssTransport struct {
	base http.RoundTripper
}

func (t *rssTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rssUserAgent)
	return t.base.RoundTrip(req)
}

// rssSleepFunc is the function used for retry backoff delays.
// It defaults to time.Sleep but can be overridden in tests.
var rssSleepFunc = time.Sleep

func (rs *RSSSource) fetchWithRetry(ctx context.Context, feedURL string) ([]Entry, error) {
	var lastErr error
	for attempt := range rssMaxRetries {
		entries, err := rs.fetchFeed(ctx, feedURL)
		if err == nil {
			return entries, nil
		}
		if !isRetryableError(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < rssMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second // 1s, 2s
			rssSleepFunc(backoff)
		}
	}
	return nil, lastErr
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "timeout") || strings.Contains(s, "Timeout") {
		return true
	}
	if strings.Contains(s, "connection refused") || strings.Contains(s, "no such host") {
		return true
	}
	if strings.Contains(s, "429") || strings.Contains(s, "500") ||
		strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "504") {
		return true
	}
	return false
}

func (rs *RSSSource) fetchFeed(ctx context.Context, feedURL string) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	fp := gofeed.NewParser()
	fp.Client = rs.client
	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	return entriesFromFeed(feed)
}

// entriesFromFeed keeps the feed's own item order.
func entriesFromFeed(feed *gofeed.Feed) ([]Entry, error) {
	entries := make([]Entry, 0, len(feed.Items))
	for i, item := range feed.Items {
		published := itemPublishedTime(item)
		if published.IsZero() {
			return nil, fmt.Errorf("entry %d (%q) has no publication time", i, item.Title)
		}
		entries = append(entries, Entry{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Published: published,
		})
	}
	return entries, nil
}

// itemPublishedTime prefers the published date and falls back to the updated date.
// Timestamps are normalized to UTC with second precision.
func itemPublishedTime(item *gofeed.Item) time.Time {
	var ts *time.Time
	switch {
	case item.PublishedParsed != nil:
		ts = item.PublishedParsed
	case item.UpdatedParsed != nil:
		ts = item.UpdatedParsed
	default:
		return time.Time{}
	}
	return ts.UTC().Truncate(time.Second)
}
