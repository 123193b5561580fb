package source

import (
	"context"
	"fmt"
	"time"
)

// Entry is a single item of a feed.
type Entry struct {
	Title     string    // entry title
	Link      string    // link to the original item
	Published time.Time // publication timestamp, UTC, whole seconds
}

// Source fetches the entries of a feed.
type Source interface {
	// Fetch returns the feed's entries in feed order, newest first.
	Fetch(ctx context.Context, feedURL string) ([]Entry, error)
}

// FetchError reports a feed that could not be retrieved or parsed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
