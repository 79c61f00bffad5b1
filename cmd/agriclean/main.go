// Command agriclean runs the field and weather cleaning pipeline over local
// files and checks rule sets and outputs without a Kafka broker.
//
// Usage:
//
//	agriclean rules  --rules rules.yaml --stations data/field_stations.csv
//	agriclean run    --rules rules.yaml --db survey.db --weather weather.csv --out merged.jsonl
//	agriclean verify --rules rules.yaml --db survey.db --weather weather.csv
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}
