package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/ppiankov/rssnotify/internal/schedule"
	"github.com/ppiankov/rssnotify/internal/server"
)

const shutdownTimeout = 30 * time.Second

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the /notify and /reset triggers and run scheduled checks",
	RunE:  serveAction,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := a.cfg.Server.Listen
	if serveListen != "" {
		addr = serveListen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return serve(ctx, a, ln)
}

// serve runs until ctx is cancelled or the HTTP server fails.
func serve(ctx context.Context, a *app, ln net.Listener) error {
	var sched *schedule.Scheduler
	if a.cfg.Schedule.Cron != "" {
		s, err := schedule.New(a.cfg.Schedule.Cron, a.dispatcher, a.log)
		if err != nil {
			_ = ln.Close()
			return err
		}
		if err := s.Start(ctx); err != nil {
			_ = ln.Close()
			return err
		}
		sched = s
	}

	srv := server.New(ctx, ln.Addr().String(), a.dispatcher, a.log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	a.log.Info().Str("addr", ln.Addr().String()).Str("feed", a.cfg.Feed.URL).Msg("serving")
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn().Err(err).Msg("sd_notify ready")
	} else if sent {
		a.log.Debug().Msg("notified systemd")
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("shutdown")
	}

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", serveErr)
	}
	a.log.Info().Msg("stopped")
	return nil
}
