package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rssnotify/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config.yaml",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Initialized %s.\n", configDir)
	} else {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# rssnotify configuration

feed:
  url: https://webboard-nsoc.ncsa.or.th/category/12.rss
  timeout: 30s

notify:
  provider: line            # line | telegram
  send_timeout: 10s
  rate_per_sec: 0           # 0 disables pacing
  max_concurrency: 8
  line:
    endpoint: https://notify-api.line.me/api/notify
    token_env: LINE_NOTIFY_TOKEN
  telegram:
    token_env: TELEGRAM_BOT_TOKEN
    chat_id: 0

storage:
  driver: file              # file | sqlite | memory
  path: .rssnotify/last_processed_time.txt

server:
  listen: 0.0.0.0:8000

schedule:
  cron: ""                  # e.g. "*/10 * * * *"; empty disables

log:
  level: info
  format: console           # console | json
`
