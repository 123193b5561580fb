package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rssnotify/internal/config"
	"github.com/ppiankov/rssnotify/internal/source"
	"github.com/ppiankov/rssnotify/internal/watermark"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, credentials, storage and feed reachability",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config.yaml (provider %s, storage %s)", cfg.Notify.Provider, cfg.Storage.Driver)

	if err := cfg.Notify.CheckCredentials(); err != nil {
		printCheck(false, "credentials: %v", err)
		ok = false
	} else {
		printCheck(true, "%s credentials", cfg.Notify.Provider)
	}

	st, err := watermark.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		printCheck(false, "watermark store: %v", err)
		ok = false
	} else {
		defer func() { _ = st.Close() }()
		switch ts, present, err := st.Get(ctx); {
		case err != nil:
			printCheck(false, "watermark: %v", err)
			ok = false
		case present:
			printCheck(true, "watermark %s", ts.Format("2006-01-02T15:04:05Z07:00"))
		default:
			printCheck(true, "watermark not set")
		}
	}

	entries, err := source.NewRSS(cfg.Feed.Timeout.Duration).Fetch(ctx, cfg.Feed.URL)
	if err != nil {
		printCheck(false, "feed: %v", err)
		ok = false
	} else {
		printCheck(true, "feed %s (%d entries)", cfg.Feed.URL, len(entries))
		if !newestFirst(entries) {
			printInfo("feed entries are not ordered newest first; the watermark follows the first entry")
		}
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func newestFirst(entries []source.Entry) bool {
	for i := 1; i < len(entries); i++ {
		if entries[i].Published.After(entries[0].Published) {
			return false
		}
	}
	return true
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
