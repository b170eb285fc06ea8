package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	flag "github.com/spf13/pflag"

	"eventboard/internal/backend"
	"eventboard/internal/capture"
	"eventboard/internal/config"
	appLog "eventboard/internal/log"
	"eventboard/internal/web"
)

type flagConfig struct {
	configPath  string
	listen      string
	backendURL  string
	logLevel    string
	captureOnce bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.backendURL != "" {
		conf.BackendURL = flags.backendURL
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	appLog.Setup(conf.LogLevel)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("eventboard starting",
		"listen", conf.Listen,
		"backend", conf.BackendURL,
		"timezone", conf.Timezone,
		"capture", conf.Capture.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.captureOnce {
		if err := capture.BoardPNG(ctx, captureOptions(conf)); err != nil {
			appLog.Error("board capture failed", err)
			os.Exit(1)
		}
		appLog.Info("board captured", "output", conf.Capture.Output)
		return
	}

	if err := run(ctx, conf); err != nil {
		appLog.Error("eventboard stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("eventboard exiting")
}

func run(ctx context.Context, conf *config.Config) error {
	api, err := backend.New(conf.BackendURL, nil)
	if err != nil {
		return err
	}
	srv, err := web.NewServer(conf, api)
	if err != nil {
		return err
	}

	sched := cron.New(cron.WithLocation(conf.Location()))
	if _, err := sched.AddFunc(conf.Janitor, func() { srv.EvictIdle() }); err != nil {
		return err
	}
	if conf.Capture.Enabled {
		if _, err := sched.AddJob(conf.Capture.Schedule, capture.NewJob(ctx, captureOptions(conf))); err != nil {
			return err
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	httpSrv := &http.Server{
		Addr:              conf.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("http server listening", "addr", conf.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// captureOptions points the browser at this process's own board page.
func captureOptions(conf *config.Config) capture.Options {
	host, port, err := net.SplitHostPort(conf.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return capture.Options{
		URL:     "http://" + net.JoinHostPort(host, port) + "/board",
		Output:  conf.Capture.Output,
		Width:   conf.Capture.Width,
		Height:  conf.Capture.Height,
		Timeout: time.Duration(conf.Capture.TimeoutSeconds) * time.Second,
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVarP(&cfg.configPath, "config", "c", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.backendURL, "backend", "", "Booking backend base URL (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	flag.BoolVar(&cfg.captureOnce, "capture-once", false, "Capture the board page once to the configured PNG and exit")

	flag.Parse()

	return cfg
}
