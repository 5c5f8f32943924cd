package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dtroode/sheetkeeper/internal/app"
	"github.com/dtroode/sheetkeeper/internal/cli"
	"github.com/dtroode/sheetkeeper/internal/config"
	"github.com/dtroode/sheetkeeper/internal/logger"
	"github.com/dtroode/sheetkeeper/internal/model"
)

var buildVersion = "N/A" // set by ldflags

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(buildVersion, func(ctx context.Context) (model.UserService, error) {
		cfg, err := config.NewConfig()
		if err != nil {
			return nil, err
		}
		components, err := app.Build(ctx, cfg, logger.NewWithWriter(cfg.LogLevel, os.Stderr), nil)
		if err != nil {
			return nil, err
		}
		return components.Users, nil
	})

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cli.Name, err)
	}
	stop()
	os.Exit(cli.ExitCode(err))
}
