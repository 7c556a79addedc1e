package main

import (
	"context"
	"log"
	"os"
)

func main() {
	cfg, err := loadConfig(os.Getenv(configEnvVar))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := run(context.Background(), cfg, os.Getenv(logLevelEnvVar)); err != nil {
		log.Fatalf("viralforged: %v", err)
	}
}
