package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/sensorhub/pkg/sensorhub"
)

func main() {
	sessions := sensorhub.NewCallbackSink("stdout", func(_ context.Context, rec *sensorhub.SessionRecord) error {
		fmt.Printf("session %s on %q: %d readings from %s to %s\n",
			rec.ID, rec.DeviceName, len(rec.DataPoints),
			rec.StartTime.Format(time.RFC3339), rec.EndTime.Format(time.RFC3339))
		return nil
	})

	rt, err := sensorhub.Conf("../../data/config.yaml", sensorhub.WithSink(sessions))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var last uint64
	rt.Subscribe(func(snap *sensorhub.Snapshot) {
		for _, r := range snap.ReadingsAfter(last) {
			fmt.Printf("%s %s=%g\n", r.Timestamp.Format(time.RFC3339Nano), r.ChannelID, r.Value)
			last = r.SequenceID
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Connect(ctx, false); err != nil {
		log.Printf("connect: %v", err)
	}
	if err := rt.Run(ctx); err != nil {
		log.Fatalf("runtime error: %v", err)
	}
}
