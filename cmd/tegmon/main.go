// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Command tegmon serves the CleanEnv telemetry dashboard API. It keeps one
// broker session, exposes it over HTTP and streams every state change to
// websocket subscribers.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/dashboard"
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/config"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "tegmon:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log, out)
	if err != nil {
		return err
	}

	clientDefaults, err := cfg.ClientOptions()
	if err != nil {
		return err
	}

	controller := telemetry.NewController(
		telemetry.WithThresholds(cfg.Thresholds()),
		telemetry.WithLivenessWindow(cfg.Telemetry.LivenessWindow),
		telemetry.WithQualityInterval(cfg.Telemetry.QualityInterval),
		telemetry.WithLogger(log),
	)
	defer controller.Close()

	server := dashboard.NewServer(
		controller,
		dashboard.WithAllowedOrigins(cfg.AllowedOrigins),
		dashboard.WithClientDefaults(clientDefaults),
		dashboard.WithLogger(log),
	)
	defer server.Close()

	if cfg.AutoConnect {
		session := cfg.Session()
		session.Options = clientDefaults
		if err := controller.Connect(session); err != nil {
			return err
		}
		log.Info("auto-connect started",
			slog.String("broker", session.BrokerURL),
			slog.Any("topics", session.Topics),
		)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("listening", slog.String("addr", cfg.Listen))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	// Streams are hijacked connections, which Shutdown does not wait for.
	_ = server.Close()

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Loads defaults, the config file, the environment and finally flags. The
// file path is picked out of the arguments first so the later flag pass can
// use the loaded values as defaults.
func loadConfig(args []string) (*config.Config, error) {
	pre := pflag.NewFlagSet("tegmon", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	path := pre.String("config", os.Getenv(config.FileEnv), "")
	if err := pre.Parse(args); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return nil, err
	}

	cfg, err := config.Load(*path, nil)
	if err != nil {
		return nil, err
	}

	flagSet := pflag.NewFlagSet("tegmon", pflag.ContinueOnError)
	flagSet.String("config", *path, "YAML config file (also $"+config.FileEnv+")")
	cfg.AddFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.Log, out io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: level,
		})), nil
	}
	return slog.New(tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})), nil
}
