package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hbomb79/Shiori/internal"
	"github.com/hbomb79/Shiori/internal/sync"
	"github.com/hbomb79/Shiori/pkg/logger"
	"github.com/mitchellh/go-homedir"
)

var log = logger.Get("Main")

// main is the entry point of the daemon. The users configuration is
// loaded from their home directory (overridable via -config), and the
// daemon runs until interrupted.
func main() {
	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	logLevel := flag.Int("log-level", int(logger.INFO.Level()), "minimum log level to output")
	flag.Parse()

	logger.SetMinLoggingLevel(*logLevel)

	config := internal.ShioriConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %s\n", err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// List sources and messengers speak external wire protocols and are
	// compiled in at composition time; none ship with the core daemon.
	shiori := internal.New(config, sync.Collaborators{}, nil)
	if err := shiori.Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Shiori stopped with error: %s\n", err.Error())
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "shiori.yaml"
	}

	return filepath.Join(home, ".config", "shiori", "shiori.yaml")
}
