package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/germanamz/dronebridge/pkg/datalayer"
	"github.com/germanamz/dronebridge/pkg/engine"
)

// loadDotEnv loads environment variables from a .env file. A missing file is
// not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg engine.LogConfig, w io.Writer) *slog.Logger {
	lc := engine.Config{Log: cfg}
	opts := &slog.HandlerOptions{Level: lc.LogLevel()}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// companion is a data layer that also carries companion messages.
type companion interface {
	datalayer.Sink
	datalayer.Messenger
}

// dialSink connects to the companion data layer, or logs snapshots when no
// sink URL is configured.
func dialSink(ctx context.Context, cfg engine.Config, log *slog.Logger) (companion, func(), error) {
	if cfg.Sink.URL == "" {
		log.Warn("no sink configured, snapshots are only logged")
		return datalayer.LogSink{Logger: log}, func() {}, nil
	}

	c, err := datalayer.Dial(ctx, cfg.Sink.URL, datalayer.Options{
		Logger: log.With("component", "sink"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial sink: %w", err)
	}

	return c, func() { _ = c.Close() }, nil
}
