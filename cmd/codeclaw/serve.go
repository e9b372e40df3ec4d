package main

import (
	"github.com/spf13/cobra"

	"github.com/flemzord/codeclaw/pkg/app"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over HTTP and WebSocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, cleanup, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			if bind != "" {
				a.Config.Gateway.Bind = bind
			}
			return a.Serve(ctx, app.ServeOptions{
				OnReady: func(addr string) {
					a.Logger.Info("codeclaw ready", "addr", addr, "workdir", a.Guard.Root(), "version", version)
				},
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Override gateway.bind")
	return cmd
}
