// Command cowtrie-server serves a versioned trie store over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/cow-trie/internal/api"
	"github.com/kumarlokesh/cow-trie/internal/config"
	"github.com/kumarlokesh/cow-trie/internal/store"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	dataDir := flag.String("data-dir", "", "Override the store directory")
	port := flag.Int("port", 0, "Override the listen port")
	flag.Parse()

	if *configPath == "" {
		if path, err := config.GetConfigPath(); err == nil {
			*configPath = path
		}
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Store.Dir = *dataDir
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger()
	log.Logger = logger

	st, err := store.Open(cfg.StoreConfig(logger))
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Dir).Msg("Failed to open store")
	}

	srv := api.NewServer(cfg.Server.Addr(), st, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down server...")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}

	log.Info().Msg("Server exiting")
}
