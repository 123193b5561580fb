// Package dispatch notifies new feed entries and advances the watermark.
//
// A run reads the watermark, fetches the feed, selects entries published
// strictly after the watermark and sends one message per selected entry
// concurrently. Only when every send succeeds is the watermark moved to the
// publication time of the feed's first entry. Runs and resets are serialized.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/rssnotify/internal/notify"
	"github.com/ppiankov/rssnotify/internal/source"
	"github.com/ppiankov/rssnotify/internal/watermark"
)

const DefaultMaxConcurrency = 8

// ErrPartialDelivery is returned by Result.Err when at least one send failed.
var ErrPartialDelivery = errors.New("partial delivery")

// Options configures a Dispatcher. Logger's zero value discards output.
type Options struct {
	FeedURL        string
	Source         source.Source
	Sender         notify.Sender
	Store          watermark.Store
	MaxConcurrency int
	Logger         zerolog.Logger
}

type Dispatcher struct {
	mu sync.Mutex

	feedURL     string
	source      source.Source
	sender      notify.Sender
	store       watermark.Store
	concurrency int
	log         zerolog.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if strings.TrimSpace(opts.FeedURL) == "" {
		return nil, errors.New("dispatch: feed URL is required")
	}
	if opts.Source == nil {
		return nil, errors.New("dispatch: source is required")
	}
	if opts.Sender == nil {
		return nil, errors.New("dispatch: sender is required")
	}
	if opts.Store == nil {
		return nil, errors.New("dispatch: watermark store is required")
	}
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrency
	}
	return &Dispatcher{
		feedURL:     opts.FeedURL,
		source:      opts.Source,
		sender:      opts.Sender,
		store:       opts.Store,
		concurrency: concurrency,
		log:         opts.Logger.With().Str("component", "dispatch").Logger(),
	}, nil
}

// Failure is an entry whose notification was not delivered.
type Failure struct {
	Entry source.Entry
	Err   error
}

// Timeout reports whether the send ran out of time.
func (f Failure) Timeout() bool {
	return notify.IsTimeout(f.Err)
}

// Result describes one completed run.
type Result struct {
	RunID      string
	Dispatched int // sends attempted
	Failed     []Failure
	Advanced   bool

	// Previous is the watermark read at the start of the run; Watermark is the
	// value in effect when the run ended. Zero means absent.
	Previous  time.Time
	Watermark time.Time
}

// Delivered is the number of successful sends.
func (r Result) Delivered() int {
	return r.Dispatched - len(r.Failed)
}

// Err reports a partially delivered batch as ErrPartialDelivery.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d sends failed", ErrPartialDelivery, len(r.Failed), r.Dispatched)
}

// Run performs one check of the feed.
//
// Fetch and watermark errors abort the run and leave the watermark untouched.
// Send failures do not abort: every send in the batch completes, the failures
// are listed in the Result and the watermark is not advanced.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := Result{RunID: uuid.NewString()}
	log := d.log.With().Str("run_id", res.RunID).Logger()
	start := time.Now()

	prev, hasPrev, err := d.store.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("read watermark")
		return res, fmt.Errorf("read watermark: %w", err)
	}
	if hasPrev {
		res.Previous = prev
		res.Watermark = prev
	}

	entries, err := d.source.Fetch(ctx, d.feedURL)
	if err != nil {
		log.Error().Err(err).Str("feed", d.feedURL).Msg("fetch feed")
		return res, err
	}

	selected := selectNew(entries, prev, hasPrev)
	log.Debug().
		Int("entries", len(entries)).
		Int("selected", len(selected)).
		Time("watermark", prev).
		Bool("has_watermark", hasPrev).
		Msg("feed filtered")
	if len(selected) == 0 {
		log.Info().Dur("took", time.Since(start)).Msg("no new entries")
		return res, nil
	}

	res.Dispatched = len(selected)
	res.Failed = d.sendAll(ctx, selected)
	if len(res.Failed) > 0 {
		for _, f := range res.Failed {
			log.Warn().
				Err(f.Err).
				Str("title", f.Entry.Title).
				Str("link", f.Entry.Link).
				Bool("timeout", f.Timeout()).
				Msg("send failed")
		}
		log.Warn().
			Int("dispatched", res.Dispatched).
			Int("failed", len(res.Failed)).
			Dur("took", time.Since(start)).
			Msg("partial delivery, watermark kept")
		return res, nil
	}

	// The first entry of the full feed is taken as the newest, whether or not
	// it was selected. It must not move the watermark backwards.
	head := entries[0].Published
	if hasPrev && !head.After(prev) {
		log.Warn().
			Time("head", head).
			Time("watermark", prev).
			Msg("first feed entry is not newer than watermark, feed may be out of order")
	} else {
		if err := d.store.Set(ctx, head); err != nil {
			log.Error().Err(err).Msg("write watermark")
			return res, fmt.Errorf("write watermark: %w", err)
		}
		res.Advanced = true
		res.Watermark = head
	}

	log.Info().
		Int("dispatched", res.Dispatched).
		Bool("advanced", res.Advanced).
		Time("watermark", res.Watermark).
		Dur("took", time.Since(start)).
		Msg("run complete")
	return res, nil
}

// Reset clears the watermark. It waits for an in-flight run to finish.
func (d *Dispatcher) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.store.Reset(ctx); err != nil {
		d.log.Error().Err(err).Msg("reset watermark")
		return fmt.Errorf("reset watermark: %w", err)
	}
	d.log.Info().Msg("watermark reset")
	return nil
}

// Watermark returns the persisted watermark; ok is false when absent.
func (d *Dispatcher) Watermark(ctx context.Context) (ts time.Time, ok bool, err error) {
	return d.store.Get(ctx)
}

// selectNew keeps entries published strictly after the watermark, in feed order.
func selectNew(entries []source.Entry, mark time.Time, hasMark bool) []source.Entry {
	if !hasMark {
		return entries
	}
	var out []source.Entry
	for _, e := range entries {
		if e.Published.After(mark) {
			out = append(out, e)
		}
	}
	return out
}

// sendAll sends every entry and waits for all of them. Failures are returned
// in feed order.
func (d *Dispatcher) sendAll(ctx context.Context, entries []source.Entry) []Failure {
	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, e := range entries {
		g.Go(func() error {
			errs[i] = d.sender.Send(ctx, Message(e))
			return nil
		})
	}
	_ = g.Wait()

	var failed []Failure
	for i, err := range errs {
		if err != nil {
			failed = append(failed, Failure{Entry: entries[i], Err: err})
		}
	}
	return failed
}

// Message is the notification text for an entry.
func Message(e source.Entry) string {
	return fmt.Sprintf("New post: %s\nLink: %s", e.Title, e.Link)
}
