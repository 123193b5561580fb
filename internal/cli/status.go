package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current watermark",
	RunE:  statusAction,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ts, ok, err := a.store.Get(cmd.Context())
	if err != nil {
		return fmt.Errorf("read watermark: %w", err)
	}

	fmt.Printf("Feed:      %s\n", a.cfg.Feed.URL)
	fmt.Printf("Storage:   %s (%s)\n", a.cfg.Storage.Path, a.cfg.Storage.Driver)
	if !ok {
		fmt.Println("Watermark: none (next check notifies every entry)")
		return nil
	}
	fmt.Printf("Watermark: %s (%s)\n", ts.Format(time.RFC3339), humanize.Time(ts))
	return nil
}
