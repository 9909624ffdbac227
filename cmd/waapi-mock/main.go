// Command waapi-mock serves an in-memory imitation of the Wwise Authoring
// API for development without a Wwise installation.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/waapi-kit/waapi-kit/internal/config"
	"github.com/waapi-kit/waapi-kit/internal/logging"
	"github.com/waapi-kit/waapi-kit/internal/mockwaapi"
)

func main() {
	configPath := flag.String("config", "waapi.yaml", "Path to config file")
	host := flag.String("host", "", "Override listen host")
	port := flag.Int("port", 0, "Override listen port")
	interval := flag.Duration("events", -1, "Emit an external change this often (0 disables; overrides config)")
	project := flag.String("project", "", "Project name reported to clients")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fatal(err)
	}
	if *host != "" {
		cfg.Mock.Host = *host
	}
	if *port > 0 {
		cfg.Mock.Port = *port
	}
	if *interval >= 0 {
		cfg.Mock.EventInterval = *interval
	}

	log, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		App:    "waapi-mock",
	})
	if err != nil {
		fatal(err)
	}
	defer closer.Close()

	opts := mockwaapi.Options{Logger: log}
	if *project != "" {
		opts.Project = mockwaapi.ProjectInfo{Name: *project, Path: "/projects/" + *project + "/" + *project + ".wproj"}
	}
	server := mockwaapi.NewServer(opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Mock.EventInterval > 0 {
		log.Info().Dur("interval", cfg.Mock.EventInterval).Msg("generating external changes")
		mockwaapi.NewGenerator(server, cfg.Mock.EventInterval).Start(ctx)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	if err := server.ListenAndServe(ctx, cfg.Mock.Host, cfg.Mock.Port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("stopped")
}

func fatal(err error) {
	os.Stderr.WriteString("waapi-mock: " + err.Error() + "\n")
	os.Exit(1)
}
