package main

import (
	"bufio"
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/primus-go/internal/codec"
	"github.com/rickgao/primus-go/internal/config"
	"github.com/rickgao/primus-go/internal/connection"
	"github.com/rickgao/primus-go/internal/journal"
	"github.com/rickgao/primus-go/internal/metrics"
	"github.com/rickgao/primus-go/internal/reachability"
	"github.com/rickgao/primus-go/internal/transport"
	"github.com/rickgao/primus-go/internal/transport/websocket"
	"github.com/rickgao/primus-go/internal/version"
)

func main() {
	app := &cli.App{
		Name:      "primus",
		Usage:     "keep a resilient real-time connection open and pipe stdin through it",
		Version:   version.String(),
		ArgsUsage: "[url]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				EnvVars: []string{"PRIMUS_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "override logging.level (debug, info, warn, error)",
				EnvVars: []string{"PRIMUS_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "override logging.format (text, json)",
			},
			&cli.BoolFlag{
				Name:  "no-stdin",
				Usage: "do not forward stdin lines as messages",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "maximum time to wait for a graceful close",
				Value: 10 * time.Second,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting primus client",
		version.Attr(),
		"url", cfg.Connection.URL,
		"transport", cfg.Connection.Transport,
	)

	// Create context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := newTransportRegistry(cfg, logger)
	if err != nil {
		return err
	}
	factory, err := registry.Lookup(cfg.Connection.Transport)
	if err != nil {
		return err
	}

	opts, err := cfg.ConnectionOptions(factory)
	if err != nil {
		return err
	}
	opts.Logger = logger
	// Subscribe before the first attempt.
	manual := opts.ManualConnect
	opts.ManualConnect = true

	if pc, ok := cfg.ProberConfig(); ok {
		prober := reachability.NewProber(pc, logger)
		prober.Start(ctx)
		defer prober.Stop()
		opts.Reachability = prober
	}

	var promReg *prometheus.Registry
	if cfg.Metrics.Enabled {
		promReg = prometheus.NewRegistry()
		promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Plugins = append(opts.Plugins, metrics.New(promReg, cfg.Metrics.Namespace))
	}

	var jr *journal.Journal
	if cfg.Journal.Enabled {
		dbCfg, jCfg := cfg.JournalConfig()
		logger.Info("connecting to journal database",
			"host", dbCfg.Host,
			"port", dbCfg.Port,
			"database", dbCfg.Name,
		)
		pool, err := journal.Connect(ctx, dbCfg)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool, jCfg.Table); err != nil {
			return err
		}
		jr = journal.New(jCfg, pool, logger)
		if err := jr.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		opts.Plugins = append(opts.Plugins, jr)
	}

	conn, err := connection.New(opts)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}

	// The process ends with the connection.
	ended := make(chan connection.EndEvent, 1)
	conn.Once(connection.EventEnd, func(payload any) {
		ev, _ := payload.(connection.EndEvent)
		ended <- ev
	})
	conn.On(connection.EventData, func(payload any) {
		if m, ok := payload.(codec.Message); ok {
			fmt.Fprintln(os.Stdout, m.String())
		}
	})
	logEvents(conn, logger)

	if !manual {
		if err := conn.Open(); err != nil {
			return fmt.Errorf("open connection: %w", err)
		}
	}

	if !c.Bool("no-stdin") {
		go forwardLines(os.Stdin, conn, logger)
	}

	g, gctx := errgroup.WithContext(ctx)

	if promReg != nil {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newHTTPHandler(conn, promReg, cfg.Metrics.Path),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case ev := <-ended:
			logger.Info("connection ended", "exhausted", ev.Exhausted, "discarded", ev.Discarded)
			stop()
			if ev.Exhausted {
				return errors.New("reconnect attempts exhausted")
			}
			return nil
		case <-gctx.Done():
			logger.Info("shutting down...")
			return nil
		}
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Duration("shutdown-timeout"))
	defer cancel()
	if err := conn.Shutdown(shutdownCtx); err != nil {
		logger.Warn("connection shutdown incomplete", "error", err)
	}
	if jr != nil {
		if err := jr.Stop(shutdownCtx); err != nil {
			logger.Warn("journal stop incomplete", "error", err)
		}
		stats := jr.Stats()
		logger.Info("journal stopped", "recorded", stats.Recorded, "inserts", stats.Inserts, "errors", stats.Errors)
	}

	logger.Info("primus client stopped")
	return runErr
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadWithDefaults(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default("")
	}

	if url := c.Args().First(); url != "" {
		cfg.Connection.URL = url
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if f := c.String("log-format"); f != "" {
		cfg.Logging.Format = f
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler), nil
}

func newTransportRegistry(cfg *config.Config, logger *slog.Logger) (*transport.Registry, error) {
	wsCfg, err := cfg.WebSocketConfig()
	if err != nil {
		return nil, err
	}
	registry := transport.NewRegistry()
	registry.Register("websocket", websocket.NewFactory(wsCfg, logger))
	return registry, nil
}

func logEvents(conn *connection.Conn, logger *slog.Logger) {
	conn.On(connection.EventOpen, func(any) {
		logger.Info("connection open")
	})
	conn.On(connection.EventReconnecting, func(payload any) {
		if ev, ok := payload.(connection.ReconnectingEvent); ok {
			logger.Info("reconnecting", "attempt", ev.Attempt, "delay", ev.Delay)
		}
	})
	conn.On(connection.EventReconnect, func(payload any) {
		if ev, ok := payload.(connection.ReconnectEvent); ok {
			logger.Info("reconnected", "attempts", ev.Attempts)
		}
	})
	conn.On(connection.EventClose, func(payload any) {
		if ev, ok := payload.(connection.CloseEvent); ok {
			logger.Info("connection closed", "code", ev.Code, "reason", ev.Reason, "clean", ev.WasClean)
		}
	})
	conn.On(connection.EventOffline, func(any) {
		logger.Warn("network offline")
	})
	conn.On(connection.EventOnline, func(any) {
		logger.Info("network online")
	})
}

// forwardLines sends each stdin line as a text message and closes the
// connection at EOF.
func forwardLines(r io.Reader, conn *connection.Conn, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := conn.Send(codec.Text(scanner.Text())); err != nil {
			logger.Warn("send failed", "error", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("read stdin", "error", err)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, connection.ErrShutdown) {
		logger.Warn("close failed", "error", err)
	}
}
