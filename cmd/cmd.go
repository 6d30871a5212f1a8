package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
)

const (
	ServiceName      = "eventcore"
	ServiceNamespace = "virtuoso"

	shutdownTimeout = 30 * time.Second
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Event bus and batching processor of the trading platform",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
			versionCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the event core",
		// flags are parsed by config.LoadConfig so viper sees which were set explicitly
		SkipFlagParsing: true,
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.Args().Slice()...)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			slog.Info("BUILD_INFO",
				"version", version,
				"commit", commit,
				"commit_date", commitDate,
				"branch", branch,
				"build_timestamp", buildTimestamp,
			)
			return nil
		},
	}
}
