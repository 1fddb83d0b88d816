package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"SignalRelay/internal/di"
	"SignalRelay/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "validate the config and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("signalrelay", di.Version)
		return
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *checkOnly {
		log.Printf("config %s ok", *configPath)
		return
	}

	log.Printf("env=%s port=%d directory=%s", cfg.Environment, cfg.Server.Port, cfg.Directory.Path)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if cfg.Kafka.Enabled {
		log.Printf("kafka: brokers=%v ingest=%s events=%s", cfg.Kafka.Brokers, cfg.Kafka.IngestTopic, cfg.Kafka.EventsTopic)
	}
	if cfg.History.Enabled {
		log.Printf("clickhouse: history table %s.%s ready", cfg.History.Database, cfg.History.Table)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
