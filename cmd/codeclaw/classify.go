package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flemzord/codeclaw/internal/command"
)

func classifyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <command>",
		Short: "Show how a shell command would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rules, err := cfg.CommandRules()
			if err != nil {
				return err
			}
			c := command.NewClassifier(rules)

			line := strings.Join(args, " ")
			class := c.Classify(line)
			approval := "runs without approval"
			if class != command.ReadOnly {
				approval = "requires approval"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", class, approval)
			return nil
		},
	}
}
