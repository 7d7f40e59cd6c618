// Command cowtriectl reads and writes a versioned trie store from the
// command line. Each invocation opens the store, recovers it from its
// snapshot and WAL, runs one command and closes it again.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/kumarlokesh/cow-trie/internal/config"
	"github.com/kumarlokesh/cow-trie/internal/store"
)

// Global flags
var (
	helpFlag   = flag.Bool("help", false, "Show help message")
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data-dir", "", "Override the store directory")
	verbose    = flag.Bool("v", false, "Enable debug logging")
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(st *store.Store, args []string) error
}

// Available commands
var commands = []Command{
	{Name: "put", Description: "Set a key: put <key> <value>", Run: runPut},
	{Name: "get", Description: "Read a key: get <key>", Run: runGet},
	{Name: "delete", Description: "Remove a key: delete <key>", Run: runDelete},
	{Name: "list", Description: "List keys: list [-prefix p] [-values]", Run: runList},
	{Name: "txn", Description: "Apply writes atomically: txn -put k=v -delete k ...", Run: runTxn},
	{Name: "checkpoint", Description: "Write a snapshot of the current version", Run: runCheckpoint},
	{Name: "log", Description: "Print the committed WAL records", Run: runLog},
}

func main() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage: %s [flags] <command> [arguments]\n", os.Args[0])
		fmt.Fprintf(out, "\nAvailable commands:\n")
		for _, cmd := range commands {
			fmt.Fprintf(out, "  %-12s %s\n", cmd.Name, cmd.Description)
		}
		fmt.Fprintf(out, "\nGlobal flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *helpFlag || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	cmd := findCommand(flag.Arg(0))
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger()
	log.Logger = logger

	st, err := store.Open(cfg.StoreConfig(logger))
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Dir).Msg("Failed to open store")
	}

	runErr := cmd.Run(st, flag.Args()[1:])
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}

func findCommand(name string) *Command {
	for i := range commands {
		if commands[i].Name == name {
			return &commands[i]
		}
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	path := *configPath
	if path == "" {
		if found, err := config.GetConfigPath(); err == nil {
			path = found
		}
	}

	// one-shot commands stay quiet unless the level is configured
	cfg, err := config.LoadConfig(path, config.WithDefault("log.level", "warn"))
	if err != nil {
		return nil, err
	}
	if *dataDir != "" {
		cfg.Store.Dir = *dataDir
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
