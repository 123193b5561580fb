// Package cli provides the command-line interface for rssnotify.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

const defaultConfigDir = ".rssnotify"

var configDir string

var rootCmd = &cobra.Command{
	Use:           "rssnotify",
	Short:         "Push a notification for every new RSS entry",
	Long:          "rssnotify checks an RSS feed for entries published since the last check and sends one push notification per new entry.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("rssnotify %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", defaultConfigDir, "config directory containing config.yaml")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
