package main

import (
	"fmt"
	"os"

	"fii-monitor/internal/cli"
	"fii-monitor/internal/config"
	"fii-monitor/internal/logging"
)

func main() {
	dir := config.DefaultConfigDir()
	cfg, err := config.Load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLoggerWithConfig(cfg.Log)

	app := cli.NewApp(cfg, logger)
	app.ConfigDir = dir

	err = cli.NewRootCmd(app).Execute()
	if cerr := app.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("Closing store")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
