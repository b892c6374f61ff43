package main

import (
	"log"
	"os"

	"AdaptiveEnsemble/internal/di"
	"AdaptiveEnsemble/pkg/config"
	"AdaptiveEnsemble/pkg/server"
)

var (
	app     *server.App
	cleanup func()
)

// setup loads config and wires the application once per invocation.
func setup() error {
	cfg, err := config.LoadWithEnv(flags.config)
	if err != nil {
		return err
	}
	a, closeFn, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}
	app, cleanup = a, closeFn
	return nil
}

func main() {
	err := rootCmd.Execute()
	if cleanup != nil {
		cleanup()
	}
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}
