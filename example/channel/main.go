package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/sensorhub"
)

func main() {
	sink, sessions, closeSessions := sensorhub.NewChannelSink("fanout", 4)
	defer closeSessions()

	rt, err := sensorhub.Conf("../../data/config.yaml", sensorhub.WithSink(sink))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	go archiveWorker(sessions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Connect(ctx, true); err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}

func archiveWorker(sessions <-chan *sensorhub.SessionRecord) {
	for rec := range sessions {
		channels := make(map[string]int)
		for _, r := range rec.DataPoints {
			channels[r.ChannelID]++
		}
		fmt.Printf("[archive] %s demo=%v readings per channel: %v\n", rec.DeviceName, rec.DemoMode, channels)
	}
}
