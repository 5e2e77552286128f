// Command rosettad runs the origin server described throughout this
// module: it loads (or generates) a configuration file, opens the user
// store and authorization tree, and serves until a shutdown signal
// arrives.
//
// Grounded on the teacher's air.go config-loading path (BurntSushi/toml +
// mapstructure validation, CLI positional config path) and its top-level
// Serve/signal-handling shape, adapted from a single-process HTTP
// framework entry point into rosettad's fixed pipeline plus
// golang.org/x/sync/errgroup for joining the plain/TLS acceptors (spec
// §4.H, §9's startup error handling).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kallhaugen/rosettad/authz"
	"github.com/kallhaugen/rosettad/config"
	"github.com/kallhaugen/rosettad/logging"
	"github.com/kallhaugen/rosettad/server"
	"github.com/kallhaugen/rosettad/userstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "rosettad:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := "rosetta.config"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if err := config.GenerateDefault(configPath); err != nil {
		return fmt.Errorf("generating default config: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.ParseLevel(cfg.String("log-level", "INFO")), cfg.String("log-format", logging.DefaultFormat))

	salt := cfg.String("server-salt", "")
	if salt == "" {
		return fmt.Errorf("server-salt is required")
	}

	users, err := userstore.Load(".users", salt)
	if err != nil {
		return fmt.Errorf("loading user store: %w", err)
	}
	if err := users.Watch(); err != nil {
		log.Warn("userstore: live-reload watch failed to start")
	}
	defer users.Close()

	tree, err := authz.Build(cfg.String("www-root", "www-root"))
	if err != nil {
		return fmt.Errorf("building authorization tree: %w", err)
	}
	if err := tree.Watch(); err != nil {
		log.Warn("authz: live-reload watch failed to start")
	}
	defer tree.Close()

	srv, err := server.New(cfg, users, tree, log)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	log.Info("rosettad: starting")
	return srv.Run(context.Background())
}
