package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/germanamz/dronebridge/pkg/control"
	"github.com/germanamz/dronebridge/pkg/engine"
	"github.com/germanamz/dronebridge/pkg/tower"
)

const (
	serviceName = "dronebridge"
	version     = "0.1.0"

	reconnectDelay = 2 * time.Second
)

func main() {
	flag.Usage = usage

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		serveCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: dronebridge serve [flags]\n\nRun the bridge until the vehicle link stays idle or a signal arrives.\n\nFlags:\n")
			serveCmd.PrintDefaults()
		}
		cfgPath := serveCmd.String("config", "dronebridge.yaml", "path to configuration file")
		envFile := serveCmd.String("env", ".env", "path to .env file (ignored if missing)")
		serveMCP := serveCmd.Bool("mcp", true, "serve the control actions as MCP tools over stdin/stdout")
		_ = serveCmd.Parse(os.Args[2:])

		if err := loadDotEnv(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		if err := runServe(*cfgPath, *serveMCP); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

	case "check-config":
		checkCmd := flag.NewFlagSet("check-config", flag.ExitOnError)
		checkCmd.Usage = func() {
			fmt.Fprintf(os.Stderr, "Usage: dronebridge check-config [flags]\n\nLoad and validate a configuration file.\n\nFlags:\n")
			checkCmd.PrintDefaults()
		}
		cfgPath := checkCmd.String("config", "dronebridge.yaml", "path to configuration file")
		envFile := checkCmd.String("env", ".env", "path to .env file (ignored if missing)")
		_ = checkCmd.Parse(os.Args[2:])

		if err := loadDotEnv(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		if err := runCheckConfig(*cfgPath, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

	case "version":
		fmt.Println(serviceName, version)

	case "-h", "-help", "--help", "help":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: dronebridge <command> [flags]\n\nCommands:\n"+
		"  serve         Run the bridge\n"+
		"  check-config  Validate a configuration file\n"+
		"  version       Print the version\n")
}

func runCheckConfig(path string, out io.Writer) error {
	cfg, err := engine.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sink := cfg.Sink.URL
	if sink == "" {
		sink = "(log only)"
	}

	fmt.Fprintf(out, "config ok\n  tower:    %s\n  sink:     %s (prefix %s)\n  watchdog: %s\n",
		cfg.Tower.URL, sink, cfg.SinkPrefix(), cfg.WatchdogPeriodDuration())

	return nil
}

func runServe(configPath string, serveMCP bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := engine.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout carries the MCP stream, so logs go to stderr.
	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	sink, closeSink, err := dialSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	client := tower.New(tower.Config{
		URL:         cfg.Tower.URL,
		AppID:       serviceName,
		DialTimeout: cfg.DialTimeoutDuration(),
		Logger:      logger.With("component", "tower"),
	})

	svc, err := engine.New(cfg, engine.Deps{
		Remote: client,
		Sink:   sink,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	// The tower link outlives the run loop so teardown can unregister.
	towerCtx, stopTower := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runTower(towerCtx, client, svc, logger)
	}()
	defer func() {
		stopTower()
		wg.Wait()
	}()

	if serveMCP {
		registry := control.NewRegistry()
		registry.Register(control.VehicleActions(svc)...)
		srv := control.NewServer(serviceName, version, registry)

		go func() {
			if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				logger.Warn("control surface stopped", "error", err)
			}
		}()
	}

	err = svc.Run(ctx)
	if errors.Is(err, engine.ErrIdle) {
		logger.Info("exiting: no vehicle connected")
		return nil
	}

	return err
}

// runTower keeps the control service link up until ctx is done.
func runTower(ctx context.Context, client *tower.Client, svc *engine.Service, log *slog.Logger) {
	for {
		err := client.Run(ctx, svc, svc.Bridge())
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("control service link lost", "error", err, "retry_in", reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
