package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/chatrelay/internal/client"
	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/protocol"
)

type options struct {
	url      string
	origin   string
	name     string
	logLevel string
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
		Use:           "chatrelay-client",
		Short:         "Interactive client for the chat relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "relay WebSocket URL")
	cmd.Flags().StringVar(&opts.origin, "origin", "http://localhost:8080", "Origin header sent during the handshake")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "username to claim right after connecting")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level for client diagnostics")
	return cmd
}

func run(ctx context.Context, opts options) error {
	logger, err := logging.NewConsole(opts.logLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	conn, err := client.Dial(ctx, opts.url, opts.origin)
	if err != nil {
		return err
	}

	printer := client.NewPrinter(os.Stdout)
	printer.Info("Connected to " + opts.url)
	printer.Info(client.Usage)

	if opts.name != "" {
		if err := conn.Send(protocol.SetUsername(opts.name)); err != nil {
			_ = conn.Close()
			return err
		}
	}

	return client.NewSession(conn, os.Stdin, printer, logger).Run(ctx)
}
