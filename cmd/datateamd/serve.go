package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/tshapedconsultant/datateam"
	"github.com/tshapedconsultant/datateam/code"
	"github.com/tshapedconsultant/datateam/config"
	"github.com/tshapedconsultant/datateam/engine"
	"github.com/tshapedconsultant/datateam/logging"
	"github.com/tshapedconsultant/datateam/model"
	"github.com/tshapedconsultant/datateam/model/anthropic"
	"github.com/tshapedconsultant/datateam/model/openai"
	"github.com/tshapedconsultant/datateam/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the workflow HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger := logging.NewLogger(logging.Config{
			Level:  parseLevel(cfg.Logging.Level),
			Format: cfg.Logging.Format,
		})

		backend, err := buildBackend(cfg)
		if err != nil {
			return err
		}

		factory := func(maxIterations, messageWindow int) server.Runner {
			return datateam.New(backend, func(o *datateam.Options) {
				o.Config = engine.Config{
					MaxIterations:    maxIterations,
					MessageWindow:    messageWindow,
					CompletionWindow: cfg.Workflow.CompletionWindow,
				}
				o.Validator = code.NewStaticValidator(cfg.Security.ForbiddenModules,
					func(vo *code.StaticValidatorOptions) { vo.Logger = logger })
				o.Logger = logger
			})
		}

		srv := server.New(factory, func(o *server.Options) { o.Logger = logger })
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: srv.Handler(),
		}

		serverErrors := make(chan error, 1)
		go func() {
			info := backend.Info()
			logger.Info("server.listening", "addr", httpSrv.Addr,
				"provider", info.Provider, "model", info.Name)
			serverErrors <- httpSrv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			logger.Info("server.shutdown", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				logger.Warn("server.shutdown_incomplete", "error", err.Error())
				return httpSrv.Close()
			}
		}
		return nil
	},
}

// buildBackend selects the model backend from the configured provider. The
// mock provider echoes input and exists for local smoke testing.
func buildBackend(cfg *config.Config) (model.Backend, error) {
	switch cfg.Model.Provider {
	case "openai":
		client := openaisdk.NewClient(option.WithAPIKey(cfg.Model.APIKey))
		return openai.NewFromClient(&client, func(o *openai.Options) {
			o.Model = cfg.Model.Name
			o.Temperature = cfg.Model.Temperature
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model.Name)
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.APIKey
		}), nil
	case "mock":
		return model.NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug
	case "warn", "warning", "WARNING":
		return slog.LevelWarn
	case "error", "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
}
