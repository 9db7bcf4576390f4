package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chanlun/internal/cli"
	"chanlun/internal/logging"
)

func main() {
	logger := logging.NewLogger()

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, logger)
	stop()

	os.Exit(code)
}
