package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestLoadConfig(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("ledger.listen", "l", _config.Ledger.Listen, "")
	cmd.Flags().String("log", _config.LogLevel, "")

	if err := cmd.Flags().Parse([]string{"-l", "127.0.0.1:7001", "--log", "warn"}); err != nil {
		t.Fatal(err)
	}
	if err := loadConfig(cmd, nil); err != nil {
		t.Fatal(err)
	}

	if _config.Ledger.Listen != "127.0.0.1:7001" {
		t.Fatalf("Ledger.Listen should be 127.0.0.1:7001, not %s", _config.Ledger.Listen)
	}
	if _config.LogLevel != "warn" {
		t.Fatalf("LogLevel should be warn, not %s", _config.LogLevel)
	}
}
