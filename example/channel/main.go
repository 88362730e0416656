package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/brct-james/titans-insider"
)

func main() {
	flow, err := insider.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, batches, closeBatches := insider.NewChannelStore("fanout", 32)
	defer closeBatches()

	go fanoutWorker("alerts", batches)

	if err := flow.Run(ctx, insider.StreamOutStore(store)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []insider.HistoryRecord) {
	for batch := range batches {
		fmt.Printf("[%s] %d new listings at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
