package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>B</title>
      <link>https://example.com/b</link>
      <pubDate>Mon, 02 Mar 2026 10:00:00 +0700</pubDate>
    </item>
    <item>
      <title>A</title>
      <link>https://example.com/a</link>
      <pubDate>Sun, 01 Mar 2026 09:30:15 +0000</pubDate>
    </item>
  </channel>
</rss>`

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := rssSleepFunc
	rssSleepFunc = func(_ time.Duration) {}
	t.Cleanup(func() { rssSleepFunc = oldSleep })
}

func TestItemPublishedTime(t *testing.T) {
	loc := time.FixedZone("ICT", 7*3600)
	published := time.Date(2026, 3, 2, 10, 0, 0, 500_000_000, loc)
	updated := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("published normalized", func(t *testing.T) {
		item := &gofeed.Item{PublishedParsed: &published}
		want := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
		got := itemPublishedTime(item)
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("updated fallback", func(t *testing.T) {
		item := &gofeed.Item{UpdatedParsed: &updated}
		if got := itemPublishedTime(item); !got.Equal(updated) {
			t.Errorf("got %v, want %v", got, updated)
		}
	})

	t.Run("published preferred", func(t *testing.T) {
		item := &gofeed.Item{PublishedParsed: &updated, UpdatedParsed: &published}
		if got := itemPublishedTime(item); !got.Equal(updated) {
			t.Errorf("got %v (updated), want %v (published)", got, updated)
		}
	})

	t.Run("zero", func(t *testing.T) {
		if got := itemPublishedTime(&gofeed.Item{}); !got.IsZero() {
			t.Errorf("got %v, want zero", got)
		}
	})
}

func TestEntriesFromFeed_PreservesOrder(t *testing.T) {
	newer := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	feed := &gofeed.Feed{Items: []*gofeed.Item{
		{Title: " Older first ", Link: "https://example.com/1", PublishedParsed: &older},
		{Title: "Newer", Link: "https://example.com/2", PublishedParsed: &newer},
	}}

	entries, err := entriesFromFeed(feed)
	if err != nil {
		t.Fatalf("entriesFromFeed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Title != "Older first" || entries[1].Title != "Newer" {
		t.Errorf("order not preserved: %+v", entries)
	}
}

func TestEntriesFromFeed_MissingDate(t *testing.T) {
	feed := &gofeed.Feed{Items: []*gofeed.Item{{Title: "No Date"}}}
	if _, err := entriesFromFeed(feed); err == nil {
		t.Fatal("expected error for entry without publication time")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("timeout exceeded"), true},
		{fmt.Errorf("Client.Timeout exceeded while awaiting headers"), true},
		{fmt.Errorf("connection refused"), true},
		{fmt.Errorf("no such host"), true},
		{fmt.Errorf("http error: 429 Too Many Requests"), true},
		{fmt.Errorf("http error: 500 Internal Server Error"), true},
		{fmt.Errorf("http error: 503 Service Unavailable"), true},
		{fmt.Errorf("http error: 404 Not Found"), false},
		{fmt.Errorf("Failed to detect feed type"), false},
	}

	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFetch(t *testing.T) {
	var userAgent atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testFeed)
	}))
	defer ts.Close()

	entries, err := NewRSS(5*time.Second).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	b := entries[0]
	if b.Title != "B" || b.Link != "https://example.com/b" {
		t.Errorf("entry 0 = %+v", b)
	}
	if want := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC); !b.Published.Equal(want) {
		t.Errorf("entry 0 published = %v, want %v", b.Published, want)
	}
	if entries[1].Title != "A" {
		t.Errorf("entry 1 title = %q, want A", entries[1].Title)
	}
	if ua, _ := userAgent.Load().(string); ua != rssUserAgent {
		t.Errorf("user agent = %q", ua)
	}
}

func TestFetch_TransientThenSuccess(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, testFeed)
	}))
	defer ts.Close()

	entries, err := NewRSS(0).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestFetch_PermanentFailure(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := NewRSS(0).Fetch(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fe.URL != ts.URL {
		t.Errorf("url = %q, want %q", fe.URL, ts.URL)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 attempt for 404, got %d", calls.Load())
	}
}

func TestFetch_AllRetriesFail(t *testing.T) {
	noSleep(t)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := NewRSS(0).Fetch(context.Background(), ts.URL)
	if err == nil {
		t.Fatal("expected error after all retries exhausted")
	}
	if calls.Load() != rssMaxRetries {
		t.Errorf("expected %d attempts, got %d", rssMaxRetries, calls.Load())
	}
}

func TestFetch_Unparsable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer ts.Close()

	_, err := NewRSS(0).Fetch(context.Background(), ts.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}

func TestFetch_EmptyURL(t *testing.T) {
	_, err := NewRSS(0).Fetch(context.Background(), " ")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
}
