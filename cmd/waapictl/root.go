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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/waapi-kit/waapi-kit/internal/config"
	"github.com/waapi-kit/waapi-kit/internal/logging"
	"github.com/waapi-kit/waapi-kit/internal/metrics"
	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

var rootCmd = &cobra.Command{
	Use:   "waapictl",
	Short: "waapictl talks to a running Wwise authoring session over WAAPI",
	Long: `waapictl connects to the Wwise Authoring API (WAMP over WebSocket) to call
procedures, stream notifications and browse the session interactively.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "waapi.yaml", "Path to config file (missing file uses defaults)")
	pf.String("host", "", "Override connection host")
	pf.Int("port", 0, "Override connection port")
}

// app bundles what every subcommand needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	logClose io.Closer
	metrics  *metrics.Metrics
	client   *waapi.Client
}

// setup loads configuration and builds the logger, metrics and client.
// quiet discards logs unless a log file is configured; the console owns the
// terminal.
func setup(cmd *cobra.Command, quiet bool) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Connection.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Connection.Port = port
	}

	a := &app{cfg: cfg}
	if quiet && cfg.Log.File == "" {
		a.log, a.logClose = logging.NewNop(), io.NopCloser(nil)
	} else {
		a.log, a.logClose, err = logging.New(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
			Out:    cmd.ErrOrStderr(),
			App:    "waapictl",
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Metrics.Addr != "" {
		a.metrics = metrics.New()
		go func() {
			if err := a.metrics.Serve(cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics server stopped")
			}
		}()
	}

	a.client = waapi.New(cfg.Client(), waapi.WithLogger(a.log), waapi.WithMetrics(a.metrics))
	return a, nil
}

func (a *app) connect(ctx context.Context) error {
	host, port := a.cfg.Connection.Host, a.cfg.Connection.Port
	if !a.client.Connect(ctx, host, port) {
		return fmt.Errorf("connect to %s: %s", a.client.URL(host, port), a.client.State().Error)
	}
	return nil
}

func (a *app) close() {
	a.client.Disconnect()
	a.logClose.Close()
}
