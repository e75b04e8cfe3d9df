// Package cmd implements the hookd command line.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/hookd/internal/config"
)

const (
	// Version is the current release.
	Version = "0.1.0"
	// Banner is printed by --version and on startup.
	Banner = `
   _                 _       _
  | |__   ___   ___ | | ____| |   hookd %s
  | '_ \ / _ \ / _ \| |/ / _' |
  | | | | (_) | (_) |   < (_| |
  |_| |_|\___/ \___/|_|\_\__,_|
`
)

var (
	cfgFile   string
	debug     bool
	quiet     bool
	overrides []string
)

var rootCmd = &cobra.Command{
	Use:   "hookd",
	Short: "Run preconfigured commands over HTTP",
	Long: `hookd launches preconfigured commands on request, captures their output
under a sharded data directory and serves their status and logs over HTTP.

Running hookd without a subcommand is the same as "hookd serve".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default <user config dir>/hookd/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not print the banner")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "override a config value, e.g. --set server.address=0.0.0.0:9000")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd returns the root command (for tests).
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig resolves the config file and applies env and --set overrides.
func loadConfig() (*config.Config, error) {
	args, err := parseOverrides(overrides)
	if err != nil {
		return nil, err
	}
	if debug {
		args["log.level"] = "debug"
	}

	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	return config.NewLoader().WithConfigPath(path).WithCmdArgs(args).Load()
}

func parseOverrides(pairs []string) (map[string]string, error) {
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", pair)
		}
		args[key] = value
	}
	return args, nil
}
