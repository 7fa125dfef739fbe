package main

import (
	"context"
	"fmt"
	"os"

	"delivery-reconciler/internal/adapters/cli"
	"delivery-reconciler/internal/app"
	"delivery-reconciler/internal/config"
)

func main() {
	cfg := config.MustLoad()
	logger := config.NewLogger(cfg.Log)
	logger.SetOutput(os.Stderr)

	ctx := context.Background()
	svc, cleanup, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("startup failed")
	}

	runErr := cli.Run(ctx, svc, os.Args[1:], os.Stdout)
	cleanup()
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
