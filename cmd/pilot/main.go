package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pilot/internal/config"
	"pilot/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
	profile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pilot",
		Short: "Cognitive control layer for autonomous task loops",
		Long: `Pilot decides what an autonomous agent loop keeps in memory, how much it
trusts its own progress, when it should stop and reflect, and which proposed
actions may run. Recorded sessions can be replayed against it to inspect
every decision.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "preset to apply ("+strings.Join(config.ListProfiles(), ", ")+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pilot version %s\n", version)
		},
	})

	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config file, applies --profile and sets up logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if profile != "" {
		if !cfg.ApplyProfile(profile) {
			return nil, fmt.Errorf("unknown profile %q", profile)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	cfg.Version = version

	if err := setupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(lc config.LoggingConfig) error {
	level := logging.ParseLevel(lc.Level)
	if verbose {
		level = logging.LevelDebug
	}

	if lc.File != "" {
		if err := logging.EnableFileLogging(lc.File, level); err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		return nil
	}
	if verbose || lc.Level == "debug" {
		logging.ConfigureFormat(level, logging.Format(lc.Format), os.Stderr)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Summarizer.APIKey != "" {
				cfg.Summarizer.APIKey = "[REDACTED]"
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", config.GetConfigPath(), out)
			return nil
		},
	}
}
