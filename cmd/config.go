package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	Long: `Load the configuration with all overrides applied, validate it and list
the configured hooks.`,
	Example: `  hookd config check --config ./hookd.yaml`,
	Args:    cobra.NoArgs,
	RunE:    runConfigCheck,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "configuration OK\n")
	fmt.Fprintf(out, "  address:  %s\n", cfg.Server.Address)
	fmt.Fprintf(out, "  data dir: %s\n", cfg.DataDir)
	fmt.Fprintf(out, "  hooks:    %d\n", len(cfg.Hooks))
	for _, name := range cfg.HookNames() {
		h := cfg.Hooks[name]
		fmt.Fprintf(out, "    - %s: %s (timeout %s, %d allowed keys)\n",
			name, h.Command, timeoutLabel(h.Timeout.Std()), len(h.AllowedKeys))
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	data, err := cfg.Serialize()
	if err != nil {
		return fmt.Errorf("serialize config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func timeoutLabel(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return d.String()
}
