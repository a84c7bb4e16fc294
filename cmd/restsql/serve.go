package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hatlonely/restsql/server"
	"github.com/spf13/cobra"
)

func newServeCommand(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := LoadOptions(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				options.Server.Addr = addr
			}

			app, err := NewApp(options)
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := server.NewServer(&options.Server, app.Service, app.DB,
				server.WithLogger(app.Logger.WithGroup("http")),
				server.WithNonceManager(app.Nonces),
				server.WithAuthenticator(app.Authenticator),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
