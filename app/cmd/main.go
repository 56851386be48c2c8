package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"studyrag/app/server"
	"studyrag/config"

	"github.com/joho/godotenv"
)

func init() {
	// Absent .env is fine, env vars may come from the environment.
	_ = godotenv.Load()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal("error loading config: ", err)
	}

	if errors := cfg.Validate(); len(errors) > 0 {
		for _, e := range errors {
			log.Println("config error:", e)
		}
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	srv := server.NewServer(cfg, logger)
	if err := srv.Run(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
