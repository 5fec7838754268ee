package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/adminsettings/internal/app"
	"github.com/atvirokodosprendimai/adminsettings/internal/logging"
)

func main() {
	cmd := &cli.Command{
		Name:  "adminsettings",
		Usage: "Multi-tenant admin settings API with rule based validation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("ADMINSETTINGS_LOG_LEVEL"),
				Usage:   "Log level (trace, debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Sources: cli.EnvVars("ADMINSETTINGS_LOG_FORMAT"),
				Usage:   "Log format (text or json)",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			conf, err := logging.ParseConfig(c.String("log-format"), c.String("log-level"))
			if err != nil {
				return ctx, err
			}
			logger := logging.ConfigureLogging(conf)
			return logger.WithContext(ctx), nil
		},
		Commands: []*cli.Command{serveCommand(), validateCommand()},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, c)
		},
	}
	cmd.Flags = append(cmd.Flags, serveFlags()...)

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.ExitCode())
		}
		log.Fatal().Err(err).Msg("adminsettings")
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":8080",
			Sources: cli.EnvVars("ADMINSETTINGS_ADDR"),
			Usage:   "HTTP listen address",
		},
		&cli.StringFlag{
			Name:    "db-path",
			Value:   "./adminsettings.sqlite",
			Sources: cli.EnvVars("ADMINSETTINGS_DB_PATH"),
			Usage:   "SQLite file path",
		},
		&cli.StringFlag{
			Name:    "bootstrap-api-key",
			Sources: cli.EnvVars("ADMINSETTINGS_BOOTSTRAP_API_KEY"),
			Usage:   "Optional API key to upsert at startup",
		},
		&cli.StringFlag{
			Name:    "bootstrap-tenant",
			Value:   "default",
			Sources: cli.EnvVars("ADMINSETTINGS_BOOTSTRAP_TENANT"),
			Usage:   "Tenant for bootstrap API key",
		},
		&cli.StringFlag{
			Name:    "bootstrap-key-name",
			Value:   "bootstrap",
			Sources: cli.EnvVars("ADMINSETTINGS_BOOTSTRAP_KEY_NAME"),
			Usage:   "Name for bootstrap API key",
		},
		&cli.StringFlag{
			Name:    "bootstrap-role",
			Value:   "admin",
			Sources: cli.EnvVars("ADMINSETTINGS_BOOTSTRAP_ROLE"),
			Usage:   "Role of the bootstrap API key (admin or viewer)",
		},
		&cli.StringFlag{
			Name:    "webhook-url",
			Sources: cli.EnvVars("ADMINSETTINGS_WEBHOOK_URL"),
			Usage:   "Outbox event webhook target URL",
		},
		&cli.StringFlag{
			Name:    "webhook-secret",
			Sources: cli.EnvVars("ADMINSETTINGS_WEBHOOK_SECRET"),
			Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API (default)",
		Action: serve,
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	logger := zerolog.Ctx(ctx)
	cfg := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapTenant:  c.String("bootstrap-tenant"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		BootstrapRole:    c.String("bootstrap-role"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
	}

	server, closer, err := app.NewServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("close resources")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		return shutdown(server)
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return shutdown(server)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func shutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
