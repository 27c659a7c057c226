package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/chatrelay/internal/console"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/server"
)

type options struct {
	port      string
	logLevel  string
	envFiles  []string
	noConsole bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chatrelay",
		Short: "Direct-message chat relay over WebSocket",
		Long: `chatrelay accepts WebSocket clients, lets each claim a unique username,
and relays text messages addressed to a username to that session.

Configuration comes from the environment (and an optional .env file);
flags override it. Type "close" on the console to shut down.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig(opts.envFiles...)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = opts.port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = opts.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, !opts.noConsole)
		},
	}

	cmd.Flags().StringVarP(&opts.port, "port", "p", ":8080", "listen address (overrides SERVER_PORT)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error (overrides LOG_LEVEL)")
	cmd.Flags().StringSliceVar(&opts.envFiles, "env-file", nil, "env files to load before reading the environment")
	cmd.Flags().BoolVar(&opts.noConsole, "no-console", false, "do not read operator commands from stdin")
	return cmd
}

func run(parent context.Context, cfg *server.Config, withConsole bool) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	coord := server.NewCoordinator(*cfg, logger, server.NewMetrics(reg))
	httpServer := server.CreateServer(cfg.Port, server.NewServer(*cfg, coord, logger, reg).Routes())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	g.Go(func() error {
		if err := server.StartServer(httpServer, logger); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-coord.Done():
		}
		coord.RequestShutdown()
		return server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger)
	})

	if withConsole {
		c := console.New(os.Stdin, os.Stdout, coord, logger)
		go func() {
			if err := c.Run(gctx); err != nil {
				logger.Warn("console stopped", zap.Error(err))
			}
		}()
	}

	err = g.Wait()
	if serr := coord.Shutdown(cfg.ShutdownTimeout); serr != nil {
		logger.Warn("coordinator shutdown incomplete", zap.Error(serr))
	}
	logger.Info("server stopped")
	return err
}
