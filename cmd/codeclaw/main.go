// Package main is the entry point for the codeclaw CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/codeclaw/internal/config"
	"github.com/flemzord/codeclaw/internal/cron"
	"github.com/flemzord/codeclaw/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	config   string
	workdir  string
	logLevel string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "codeclaw",
		Short:         "A coding agent that edits and runs code in a working directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVarP(&flags.workdir, "workdir", "w", "", "Directory the tools are confined to")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level")

	root.AddCommand(
		versionCmd(),
		chatCmd(flags),
		serveCmd(flags),
		classifyCmd(flags),
		backupsCmd(flags),
		configCmd(flags),
	)
	return root
}

// loadConfig finds, loads and validates the configuration, applying the
// command-line overrides.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	path, err := config.Find(flags.config)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flags.workdir != "" {
		cfg.Workdir = flags.workdir
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads the configuration and builds the app. The returned context
// is cancelled on SIGINT or SIGTERM.
func openApp(cmd *cobra.Command, flags *globalFlags) (context.Context, *app.App, func(), error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	a, err := app.New(ctx, cfg, app.Params{Version: version, LogWriter: cmd.ErrOrStderr()})
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := a.Close(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn("shutdown", "error", err)
		}
		stop()
	}
	return ctx, a, cleanup, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "codeclaw %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.config = args[0]
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d providers)\n", len(cfg.Providers))
			for _, p := range cfg.Providers {
				fmt.Fprintf(out, "  %s: %s\n", p.Name, p.Model)
			}
			fmt.Fprintf(out, "eventlog: %s\n", cfg.EventLog.Driver)
			if cfg.Backups.PruneSchedule != "" {
				fmt.Fprintf(out, "backup pruning: %s (retention %s)\n", cfg.Backups.PruneSchedule, cfg.Backups.Retention)
				if next, err := cron.Next(cfg.Backups.PruneSchedule, time.Now()); err == nil {
					fmt.Fprintf(out, "  next run: %s\n", next.Format(time.RFC3339))
				}
			}
			return nil
		},
	})
	return cmd
}
