// Package main provides the entry point for the nma command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bmskinner/nma-sub021/internal/cli"
	"github.com/bmskinner/nma-sub021/internal/config"
	"github.com/bmskinner/nma-sub021/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRoot(cfg, logger, os.Stdout)
	if err := cli.NewRootCmd(root).ExecuteContext(ctx); err != nil {
		stop()
		closer.Close()
		os.Exit(1)
	}
}
