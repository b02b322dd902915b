package main

import (
	"context"
	"fmt"
	"os"

	"github.com/0xA1M/sentinel-audit/internal/config"
	"github.com/0xA1M/sentinel-audit/internal/logging"
	"github.com/0xA1M/sentinel-audit/internal/signals"
	"github.com/0xA1M/sentinel-audit/internal/viewer"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	log := logging.GetLogger("")
	defer log.Sync()

	err := signals.Execute(log, func(ctx context.Context) error {
		cmd := viewer.NewCommand(ctx, log)
		cmd.SetArgs(os.Args[1:])
		return cmd.ExecuteContext(ctx)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
