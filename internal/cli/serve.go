package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jvictorlopez/games-nl-sql-analytics/internal/mcpserver"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/metrics"
	"github.com/jvictorlopez/games-nl-sql-analytics/internal/server"
)

type ServeCmd struct {
	build BuildInfo
}

func NewServeCmd(build BuildInfo) *ServeCmd {
	return &ServeCmd{build: build}
}

func (c *ServeCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, MCP endpoint and prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
			if err != nil {
				return fmt.Errorf("failed to get verbose flag: %w", err)
			}
			listenAddr, err := resolve(cmd.Flags(), "listen-addr", envListenAddr, os.Getenv)
			if err != nil {
				return fmt.Errorf("failed to get listen-addr flag: %w", err)
			}
			metricsAddr, err := resolve(cmd.Flags(), "metrics-addr", envMetricsAddr, os.Getenv)
			if err != nil {
				return fmt.Errorf("failed to get metrics-addr flag: %w", err)
			}
			enableMCP, err := cmd.Flags().GetBool("enable-mcp")
			if err != nil {
				return fmt.Errorf("failed to get enable-mcp flag: %w", err)
			}
			origins, err := cmd.Flags().GetStringSlice("allowed-origins")
			if err != nil {
				return fmt.Errorf("failed to get allowed-origins flag: %w", err)
			}

			log := newLogger(os.Stdout, verbose)

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, cmd.Flags(), log)
			if err != nil {
				return err
			}
			defer a.Close()

			var mcpHandler http.Handler
			if enableMCP {
				mcpSrv, err := mcpserver.New(mcpserver.Config{
					Logger:       log,
					Version:      c.build.Version,
					Orchestrator: a.Orchestrator,
					Querier:      a.Store,
					Validator:    a.Validator,
				})
				if err != nil {
					return fmt.Errorf("failed to create mcp server: %w", err)
				}
				mcpHandler = mcpSrv.Handler()
			}

			srv, err := server.New(server.Config{
				Logger:         log,
				Version:        c.build.Version,
				Orchestrator:   a.Orchestrator,
				Dataset:        a.Store,
				Validator:      a.Validator,
				AllowedOrigins: origins,
				MCP:            mcpHandler,
			})
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			metricsErrCh := make(chan error, 1)
			if metricsAddr != "" {
				metrics.BuildInfo.WithLabelValues(c.build.Version, c.build.Commit, c.build.Date).Set(1)
				go serveMetrics(log, metricsAddr, metricsErrCh)
			}

			lis, err := net.Listen("tcp", listenAddr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
			}
			log.Debug("serve: starting", "mcp", enableMCP, "metrics", metricsAddr != "")

			serverErrCh := make(chan error, 1)
			go func() {
				serverErrCh <- srv.Serve(ctx, lis)
			}()

			select {
			case err := <-serverErrCh:
				return err
			case err := <-metricsErrCh:
				cancel()
				<-serverErrCh
				return err
			}
		},
	}

	cmd.Flags().String("listen-addr", defaultListenAddr, "HTTP server listen address (or set "+envListenAddr+")")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "prometheus metrics listen address, empty to disable (or set "+envMetricsAddr+")")
	cmd.Flags().Bool("enable-mcp", true, "mount the MCP endpoint at /mcp")
	cmd.Flags().StringSlice("allowed-origins", []string{"*"}, "CORS allowed origins")

	return cmd
}

func serveMetrics(log *slog.Logger, addr string, errCh chan<- error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to start prometheus metrics server listener", "error", err)
		errCh <- err
		return
	}
	log.Info("prometheus metrics server listening", "address", listener.Addr().String())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("failed to start prometheus metrics server", "error", err)
		errCh <- err
	}
}
