// Package main is the entry point for the netinspect command.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netinspect/netinspect/internal/api"
	"github.com/netinspect/netinspect/internal/config"
	"github.com/netinspect/netinspect/internal/inspector"
	"github.com/netinspect/netinspect/internal/publisher"
	"github.com/netinspect/netinspect/internal/report"
	"github.com/netinspect/netinspect/internal/scanner"
	"github.com/netinspect/netinspect/internal/store"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Exit codes.
const (
	exitOK     = 0
	exitReport = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	flags := pflag.NewFlagSet("netinspect", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	ip := flags.String("ip", "", "IP address to scan (e.g. 8.8.8.8)")
	ports := flags.String("ports", "", "port range to scan, start-end (default from scanner.default_ports, 1-65535)")
	target := flags.String("url", "", "single URL to inspect (e.g. https://example.com)")
	flags.String("output", "text", "output format: text or json")
	flags.String("output-dir", ".", "directory JSON reports are written to")
	flags.String("config", "", "path to a YAML config file")
	flags.Int("concurrency", 0, "maximum probes in flight, 0 for one per port")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Int("port", 8001, "HTTP API port when serving")
	serve := flags.Bool("serve", false, "run the HTTP API")

	console := report.NewConsole(stdout, ".", zap.NewNop().Sugar())

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		console.Error("Error: " + err.Error())
		return exitUsage
	}

	cfg, err := config.Load(flags)
	if err != nil {
		console.Error("Error: failed to load configuration: " + err.Error())
		return exitUsage
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	console = report.NewConsole(stdout, cfg.Output.Dir, sugar)

	mode, err := report.ParseMode(cfg.Output.Mode)
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitUsage
	}

	switch {
	case *ip != "" && *target != "":
		console.Error("Error: --ip and --url cannot be used together.")
		return exitUsage
	case flags.Changed("ports") && *ip == "":
		console.Error("Error: --ports can only be used with --ip.")
		return exitUsage
	case *serve && (*ip != "" || *target != ""):
		console.Error("Error: --serve cannot be combined with --ip or --url.")
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *serve:
		return runServer(ctx, cfg, sugar, console)
	case *ip != "":
		return runScan(ctx, cfg, sugar, console, *ip, *ports, mode)
	case *target != "":
		return runInspect(ctx, cfg, sugar, console, *target, mode)
	}

	console.Error("Error: one of --ip or --url is required.")
	console.Info("Use --help for more information.")
	return exitUsage
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format != "json" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// newSink returns the RabbitMQ publisher when enabled. The returned closer is never nil.
func newSink(cfg config.RabbitMQConfig, logger *zap.SugaredLogger) (scanner.EventSink, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	pub, err := publisher.New(cfg, logger)
	if err != nil {
		return nil, func() {}, err
	}
	return pub, func() { _ = pub.Close() }, nil
}

func runScan(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, console *report.Console, ip, ports string, mode report.Mode) int {
	console.Info(fmt.Sprintf("Starting scan for %s...", ip))

	if err := scanner.ValidateIP(ip); err != nil {
		console.Error("Invalid IP address format.")
		return exitUsage
	}

	sink, closeSink, err := newSink(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Warnw("Event publishing disabled", "error", err)
	}
	defer closeSink()

	scan := scanner.New(cfg.Scanner, scanner.NewResolver(cfg.Resolver), sink, logger)
	rep, err := scan.Scan(ctx, scanner.Request{IP: ip, Ports: ports})
	if errors.Is(err, scanner.ErrInvalidIP) {
		console.Error("Invalid IP address format.")
		return exitUsage
	}
	if errors.Is(err, context.Canceled) {
		console.Error("Scan interrupted.")
		return exitReport
	}
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitReport
	}

	if err := console.RenderScan(rep, mode); err != nil {
		return exitReport
	}
	return exitOK
}

func runInspect(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, console *report.Console, target string, mode report.Mode) int {
	console.Info(fmt.Sprintf("Analyzing URL: %s", target))

	insp, err := inspector.New(cfg.Inspector, logger)
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitReport
	}

	res, err := insp.Inspect(ctx, target)
	if errors.Is(err, inspector.ErrInvalidURL) {
		console.Error("Error: " + err.Error())
		return exitUsage
	}
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitReport
	}

	if err := console.RenderInspection(res, mode); err != nil {
		return exitReport
	}
	return exitOK
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, console *report.Console) int {
	logger.Infow("Starting netinspect service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		console.Error("Error: failed to open store: " + err.Error())
		return exitReport
	}
	defer func() { _ = st.Close() }()

	sink, closeSink, err := newSink(cfg.RabbitMQ, logger)
	if err != nil {
		logger.Warnw("Event publishing disabled", "error", err)
	}
	defer closeSink()

	insp, err := inspector.New(cfg.Inspector, logger)
	if err != nil {
		console.Error("Error: " + err.Error())
		return exitReport
	}

	scan := scanner.New(cfg.Scanner, scanner.NewResolver(cfg.Resolver), sink, logger)
	server := api.New(cfg.Server, cfg.Callback, scan, insp, st, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		console.Error("Error: HTTP server failed: " + err.Error())
		return exitReport
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}
	server.Stop()

	logger.Info("Server stopped")
	return exitOK
}
