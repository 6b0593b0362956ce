package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/matthieugusmini/docker-steward/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		cli.HandleExitError(err)
	}
}
