package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/sensorhub"
)

func main() {
	cfg, err := sensorhub.DefaultConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	rt, err := sensorhub.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Connect(ctx, true); err != nil {
		log.Fatalf("connect: %v", err)
	}
	log.Printf("simulation running, API on %s", cfg.API.Addr)

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime exited: %v", err)
	}
}
