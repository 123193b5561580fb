// Package schedule triggers dispatcher runs on a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ppiankov/rssnotify/internal/dispatch"
)

// Runner performs one check.
type Runner interface {
	Run(ctx context.Context) (dispatch.Result, error)
}

// Scheduler calls Runner.Run on every tick of a standard 5-field cron
// expression. A tick that fires while the previous run is still going is skipped.
type Scheduler struct {
	mu     sync.Mutex
	spec   string
	runner Runner
	log    zerolog.Logger

	c      *cron.Cron
	cancel context.CancelFunc
}

func New(spec string, runner Runner, log zerolog.Logger) (*Scheduler, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("schedule: cron expression is required")
	}
	if runner == nil {
		return nil, errors.New("schedule: runner is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
	}
	return &Scheduler{
		spec:   spec,
		runner: runner,
		log:    log.With().Str("component", "schedule").Logger(),
	}, nil
}

// Start begins firing. Runs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(s.spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule: add job: %w", err)
	}
	c.Start()

	s.c, s.cancel = c, cancel
	s.log.Info().Str("cron", s.spec).Msg("scheduler started")
	return nil
}

// Stop halts the scheduler and waits for an in-flight run or ctx, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	res, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", res.RunID).Msg("scheduled run failed")
		return
	}
	if perr := res.Err(); perr != nil {
		s.log.Warn().Err(perr).Str("run_id", res.RunID).Msg("scheduled run partially delivered")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
