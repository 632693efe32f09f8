// Command sampled runs the marine sample workflow server: state machine,
// audit ledger and live view behind an authenticated HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"samplecore/internal/blob"
	"samplecore/internal/config"
	"samplecore/internal/core"
	"samplecore/internal/httpapi"
	"samplecore/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sampled: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := config.SetupLogger(cfg)
	logger.WithField("version", config.Version).Info("sampled starting")

	offices, err := registry.Open()
	if err != nil {
		return fmt.Errorf("open office registry: %w", err)
	}

	photos, err := blob.Open(context.Background())
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore(store, logger)

	service := core.NewService(store,
		core.WithOfficeDirectory(offices),
		core.WithLogger(&logrusCoreLogger{logger: logger}),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(nil)),
	)

	api := httpapi.New(httpapi.Options{
		Service:   service,
		Photos:    photos,
		Offices:   offices,
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Router(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("sampled stopped")
	return nil
}

func closeStore(store core.PersistentStore, logger *logrus.Logger) {
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}
}

// logrusCoreLogger adapts logrus to the engine's logger interface. Args are
// alternating key/value pairs.
type logrusCoreLogger struct {
	logger *logrus.Logger
}

func (l *logrusCoreLogger) fields(args []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	return fields
}

func (l *logrusCoreLogger) Debug(msg string, args ...any) { l.logger.WithFields(l.fields(args)).Debug(msg) }
func (l *logrusCoreLogger) Info(msg string, args ...any)  { l.logger.WithFields(l.fields(args)).Info(msg) }
func (l *logrusCoreLogger) Warn(msg string, args ...any)  { l.logger.WithFields(l.fields(args)).Warn(msg) }
func (l *logrusCoreLogger) Error(msg string, args ...any) { l.logger.WithFields(l.fields(args)).Error(msg) }
