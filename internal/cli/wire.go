package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/ppiankov/rssnotify/internal/config"
	"github.com/ppiankov/rssnotify/internal/dispatch"
	"github.com/ppiankov/rssnotify/internal/logging"
	"github.com/ppiankov/rssnotify/internal/notify"
	"github.com/ppiankov/rssnotify/internal/source"
	"github.com/ppiankov/rssnotify/internal/watermark"
)

// app holds the components built from one config.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	store      watermark.Store
	dispatcher *dispatch.Dispatcher
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// loadApp builds the logger and watermark store. withSender also builds the
// notification sender and dispatcher, which require provider credentials.
func loadApp(withSender bool) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	st, err := watermark.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open watermark store: %w", err)
	}
	a := &app{cfg: cfg, log: log, store: st}

	if !withSender {
		return a, nil
	}

	sender, err := buildSender(cfg.Notify)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.dispatcher, err = dispatch.New(dispatch.Options{
		FeedURL:        cfg.Feed.URL,
		Source:         source.NewRSS(cfg.Feed.Timeout.Duration),
		Sender:         sender,
		Store:          st,
		MaxConcurrency: cfg.Notify.MaxConcurrency,
		Logger:         log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// buildSender composes provider, per-send timeout and pacing.
func buildSender(cfg config.NotifyConfig) (notify.Sender, error) {
	if err := cfg.CheckCredentials(); err != nil {
		return nil, err
	}

	var base notify.Sender
	switch cfg.Provider {
	case notify.ProviderLine:
		ls, err := notify.NewLine(cfg.Line.Endpoint, cfg.Line.Token)
		if err != nil {
			return nil, err
		}
		base = ls
	case notify.ProviderTelegram:
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.APIURL, cfg.SendTimeout.Duration)
		if err != nil {
			return nil, err
		}
		base = tg
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}

	return notify.RateLimited(notify.WithTimeout(base, cfg.SendTimeout.Duration), cfg.RatePerSec), nil
}
