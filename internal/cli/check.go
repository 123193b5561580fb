package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the feed once and notify new entries",
	RunE:  checkAction,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkAction(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.dispatcher.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}

	fmt.Printf("Dispatched %d notifications", res.Dispatched)
	if len(res.Failed) > 0 {
		fmt.Printf(" (%d failed)", len(res.Failed))
	}
	if res.Advanced {
		fmt.Printf(", watermark advanced to %s", res.Watermark.Format("2006-01-02T15:04:05Z07:00"))
	}
	fmt.Println()

	for _, f := range res.Failed {
		fmt.Printf("  failed: %s (%s): %v\n", f.Entry.Title, f.Entry.Link, f.Err)
	}
	return res.Err()
}
