package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/scigo-workbench/internal/server"
	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/pkg/log"
	"github.com/YuminosukeSato/scigo-workbench/registry"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP wizard server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			// Override host and port if specified via flag
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := log.GetLoggerWithName("server")
			logger.Info("scigo-workbench starting",
				"version", Version,
				"config", opts.cfgFile,
			)

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			srv := server.New(cfg, registry.Default(), st, logger, Version)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("shutdown signal received")
				signal.Stop(sigCh)

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					logger.Error("server shutdown error", "error", err)
				}
			}()

			logger.Info("scigo-workbench ready", "addr", srv.Addr())
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "server error")
			}
			logger.Info("scigo-workbench stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "listen host")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port")
	return cmd
}
