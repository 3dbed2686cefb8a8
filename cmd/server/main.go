package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/verisite/fieldflow/internal/config"
	"github.com/verisite/fieldflow/internal/container"
	httpserver "github.com/verisite/fieldflow/internal/interfaces/http"
	"github.com/verisite/fieldflow/pkg/utils"
)

func main() {
	// Load .env if present; real environment variables win
	_ = gotenv.Load()

	// Load configuration
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting FieldFlow inspection engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Root context cancelled on shutdown signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	// Build and start the container
	app, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	services := app.Services()

	// Health endpoint answers from the container's component probes
	healthFn := func() (bool, map[string]httpserver.ComponentHealth) {
		status := app.Health()
		components := make(map[string]httpserver.ComponentHealth, len(status.Components))
		for name, component := range status.Components {
			components[name] = httpserver.ComponentHealth{
				Healthy: component.Healthy,
				Message: component.Message,
			}
		}
		return status.Overall, components
	}

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			CORSEnabled:  cfg.Server.CORSEnabled,
		},
		services.Definition,
		services.Instance,
		services.Movement,
		services.Evidence,
		services.Expansion,
		services.Report,
		healthFn,
		&zapHTTPLogger{logger: logger.Sugar()},
	)

	// Blocks until the context is cancelled, then shuts down gracefully
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server exited with error", zap.Error(err))
	}

	if err := app.Close(); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// zapHTTPLogger adapts zap to the HTTP server's Logger interface.
type zapHTTPLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l *zapHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}
