package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/virtexvirtuoso/Virtuoso-sub009/config"
)

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// ProvideLogger builds the process logger and installs it as the slog default.
// The level follows log.level across config file reloads.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Log.Level))

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", ServiceName,
		"version", version,
	)
	slog.SetDefault(logger)

	// [HOT_RELOAD]
	cfg.OnChange(func(next *config.Config) {
		if l := parseLevel(next.Log.Level); l != level.Level() {
			level.Set(l)
			logger.Info("LOG_LEVEL_CHANGED", "level", l.String())
		}
	})
	return logger
}

// ProvideWatermillLogger routes watermill logs through slog.
func ProvideWatermillLogger(logger *slog.Logger) watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logger.With("component", "watermill"))
}
