package main

import (
	"flag"
	"log"
	"os"

	"PolEn/internal/di"
	"PolEn/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s transport=%s history=%s engine=%s",
		cfg.Environment, cfg.Stream.Transport, cfg.History.Source, cfg.Engine.BaseURL)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	// Blocks until signal.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
