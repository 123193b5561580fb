package cli

import "testing"

func TestVersionNotEmpty(t *testing.T) {
	if Version == "" {
		t.Error("Version should not be empty")
	}
}

func TestExecuteVersion(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	out, err := captureStdout(t, Execute)
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	requireContains(t, out, "rssnotify dev")
}

func TestConfigFlagDefault(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("config")
	if f == nil {
		t.Fatal("missing --config flag")
	}
	if f.DefValue != defaultConfigDir {
		t.Errorf("default = %q, want %q", f.DefValue, defaultConfigDir)
	}
}
