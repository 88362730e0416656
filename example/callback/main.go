package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/brct-james/titans-insider/pkg/insider"
)

func main() {
	flow, err := insider.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []insider.HistoryRecord) error {
		for _, r := range batch {
			fmt.Printf("%s %s uid=%s gold=%d gems=%d\n",
				time.UnixMilli(r.CapturedAt).Format(time.RFC3339),
				r.TType,
				r.UID,
				r.GoldPrice,
				r.GemsPrice,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, insider.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
