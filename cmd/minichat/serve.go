package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dstilesr/mini-chats/internal/dispatch"
	"github.com/dstilesr/mini-chats/internal/server"
)

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.NewConfigFromEnv().Sanitize()
			if port > 0 {
				cfg.Port = port
			}

			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			if cfg.Environment != "dev" {
				log.SetFormatter(&log.JSONFormatter{})
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := dispatch.NewTaskRunner(ctx)
			metrics := dispatch.NewMetrics(prometheus.DefaultRegisterer)
			dispatcher := dispatch.NewDispatcher(
				runner,
				dispatch.WithMetrics(metrics),
				dispatch.WithSendTimeout(cfg.SendTimeout),
			)

			handler := server.NewHandler(cfg, dispatcher, runner)
			router := server.SetupRoutes(handler, cfg)
			srv := server.CreateServer(cfg.Addr(), router)

			return server.Run(ctx, srv, runner)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides PORT)")
	return cmd
}
