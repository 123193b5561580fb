package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the watermark so the next check notifies every entry",
	RunE:  resetAction,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func resetAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	a.log.Info().Str("driver", a.cfg.Storage.Driver).Msg("watermark reset")
	fmt.Println("Watermark reset.")
	return nil
}
