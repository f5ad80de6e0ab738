package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"fraudocr/cmd"
	"fraudocr/internal/config"
	"fraudocr/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Warning: Could not load configuration: %v", err)
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	l := logger.WithComponent("main")
	l.Debug().Msg("Starting fraudocr")

	cmd.Execute(cfg)
}
