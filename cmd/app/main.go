package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/synthcheck/internal/app"
)

func main() {
	if err := loadEnvFile(envFileFromArgs(os.Args[1:])); err != nil {
		logrus.Fatal(err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "synthcheck",
		Usage: "Constraint validation for synthetic tabular data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "Optional dotenv file loaded before flags are read",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("SYNTHCHECK_LOG_LEVEL"),
				Usage:   "Log level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{serveCommand(), validateCommand(), checkCommand()},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("SYNTHCHECK_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./synthcheck.sqlite",
				Sources: cli.EnvVars("SYNTHCHECK_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "bootstrap-api-key",
				Sources: cli.EnvVars("SYNTHCHECK_BOOTSTRAP_API_KEY"),
				Usage:   "Optional API key to upsert at startup",
			},
			&cli.StringFlag{
				Name:    "bootstrap-tenant",
				Value:   "default",
				Sources: cli.EnvVars("SYNTHCHECK_BOOTSTRAP_TENANT"),
				Usage:   "Tenant for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "bootstrap-key-name",
				Value:   "bootstrap",
				Sources: cli.EnvVars("SYNTHCHECK_BOOTSTRAP_KEY_NAME"),
				Usage:   "Name for bootstrap API key",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("SYNTHCHECK_WEBHOOK_URL"),
				Usage:   "Receiver of validation.completed events; events are logged when empty",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("SYNTHCHECK_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.DurationFlag{
				Name:    "dispatch-interval",
				Value:   2 * time.Second,
				Sources: cli.EnvVars("SYNTHCHECK_DISPATCH_INTERVAL"),
				Usage:   "Outbox polling interval",
			},
			&cli.Int64Flag{
				Name:    "max-upload-bytes",
				Value:   32 << 20,
				Sources: cli.EnvVars("SYNTHCHECK_MAX_UPLOAD_BYTES"),
				Usage:   "Largest accepted file upload",
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, c *cli.Command) error {
	log := app.SetupLogging(c.String("log-level"))
	cfg := app.Config{
		Addr:             c.String("addr"),
		DBPath:           c.String("db-path"),
		LogLevel:         c.String("log-level"),
		BootstrapAPIKey:  c.String("bootstrap-api-key"),
		BootstrapTenant:  c.String("bootstrap-tenant"),
		BootstrapKeyName: c.String("bootstrap-key-name"),
		WebhookURL:       c.String("webhook-url"),
		WebhookSecret:    c.String("webhook-secret"),
		DispatchInterval: c.Duration("dispatch-interval"),
		MaxUploadBytes:   c.Int64("max-upload-bytes"),
	}

	server, closer, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer func() {
		if closeErr := closer.Close(); closeErr != nil {
			log.WithError(closeErr).Error("close resources")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate a local data file against a metadata document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "metadata", Required: true, Usage: "Metadata JSON file"},
			&cli.StringFlag{Name: "data", Required: true, Usage: "CSV or JSON data file"},
			&cli.StringFlag{Name: "table", Usage: "Table to validate; defaults to the first table"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			res, err := app.ValidateFiles(c.String("metadata"), c.String("data"), c.String("table"))
			if err != nil {
				return err
			}
			if err := printJSON(c, res); err != nil {
				return err
			}
			if !res.Passed {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Check the constraint sets of a metadata document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "metadata", Required: true, Usage: "Metadata JSON file"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			checks, err := app.CheckFile(c.String("metadata"))
			if err != nil {
				return err
			}
			if err := printJSON(c, checks); err != nil {
				return err
			}
			for _, t := range checks {
				if len(t.Errors) > 0 {
					return cli.Exit("", 1)
				}
			}
			return nil
		},
	}
}

func printJSON(c *cli.Command, v any) error {
	enc := json.NewEncoder(c.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// envFileFromArgs finds --env-file before flag parsing so the file can feed
// the environment sources of every flag.
func envFileFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--env-file" || arg == "-env-file":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--env-file="):
			return strings.TrimPrefix(arg, "--env-file=")
		case strings.HasPrefix(arg, "-env-file="):
			return strings.TrimPrefix(arg, "-env-file=")
		}
	}
	return ".env"
}

// loadEnvFile loads path into the environment. A missing file is not an error;
// variables already set win.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
