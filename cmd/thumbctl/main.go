package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"thumblify/thumbnail-api/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "thumbctl:", err)
		os.Exit(1)
	}
}
