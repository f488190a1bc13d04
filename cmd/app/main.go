package main

import (
	"flag"
	"log"
	"os"

	"IgniteX/internal/di"
	"IgniteX/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s symbols=%v kafka=%t redis=%t clickhouse=%t feed=%t",
		cfg.Environment, cfg.Symbols, cfg.Kafka.Enabled, cfg.Redis.Enabled, cfg.ClickHouse.Enabled, cfg.Feed.Enabled)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run blocks until a signal arrives.
	runErr := app.Run()
	cleanup()
	if runErr != nil {
		log.Printf("app error: %v", runErr)
		os.Exit(1)
	}
}
