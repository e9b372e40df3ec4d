package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flemzord/codeclaw/internal/backup"
	"github.com/flemzord/codeclaw/internal/pathguard"
)

func backupsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune edit backups",
	}
	cmd.AddCommand(backupsListCmd(flags), backupsPruneCmd(flags))
	return cmd
}

// backupRoot returns the resolved working directory backups live under.
func backupRoot(flags *globalFlags) (string, time.Duration, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return "", 0, err
	}
	g, err := pathguard.New(cfg.Workdir)
	if err != nil {
		return "", 0, err
	}
	return g.Root(), cfg.Backups.Retention, nil
}

func backupsListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, _, err := backupRoot(flags)
			if err != nil {
				return err
			}
			list, err := backup.List(root)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tCREATED\tSIZE\tBACKUP")
			for _, b := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					rel(root, b.Original),
					humanize.Time(b.Created),
					humanize.Bytes(uint64(b.Size)),
					rel(root, b.Path),
				)
			}
			return tw.Flush()
		},
	}
}

func backupsPruneCmd(flags *globalFlags) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, retention, err := backupRoot(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			if retention <= 0 {
				return errors.New("no retention configured: set backups.retention or pass --older-than")
			}

			removed, err := backup.Prune(root, retention, time.Now())
			var freed int64
			for _, b := range removed {
				freed += b.Size
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", rel(root, b.Path))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d backups removed, %s freed\n", len(removed), humanize.Bytes(uint64(freed)))
			return err
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Override backups.retention")
	return cmd
}

func rel(root, p string) string {
	if r, err := filepath.Rel(root, p); err == nil {
		return r
	}
	return p
}
