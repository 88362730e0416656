package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/brct-james/titans-insider"
)

func main() {
	flow, err := insider.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("sniffer exited: %v", err)
	}
}
