package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tacklebox-studio/tacklebox/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pre-flight HTTP API",
	Long: `Serve pre-flight checks over HTTP.

Requests authenticate with a bearer token issued by "tbx token issue".
Pre-flight checks by task ID run against the sandbox task file. The
server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil || Tables == nil {
			return fmt.Errorf("configuration not initialized")
		}
		if Config.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		serverCfg := Config.Server
		if serveAddr != "" {
			serverCfg.Addr = serveAddr
		}

		logger := Logger
		if logger == nil {
			logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
		}

		opts := api.Options{
			Config:   serverCfg,
			Tables:   Tables,
			Sessions: api.BearerSessions{Secret: []byte(Config.Auth.JWTSecret)},
			Events:   Events,
			Logger:   logger,
		}
		if TaskStore != nil {
			opts.Tasks = TaskStore
		}

		srv, err := api.NewServer(opts)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to server.addr)")
	rootCmd.AddCommand(serveCmd)
}
