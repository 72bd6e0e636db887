package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarrycli/quarry/internal/config"
	"github.com/quarrycli/quarry/internal/errs"
	"github.com/quarrycli/quarry/pkg/logger"
)

var version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "quarry:", err)
		return 2
	}
	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log),
		Format: logger.TextFormat,
	})

	rootCmd := &cobra.Command{
		Use:           "quarry",
		Short:         "Validate systems-programming exercises against their checks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCommand(cfg, log),
		newListTasksCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "quarry:", err)
		return errs.ExitCode(err)
	}
	return 0
}
