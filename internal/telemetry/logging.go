package telemetry

import (
	"log/slog"
	"os"
)

// SetupLogger installs the process-wide slog logger: text with debug output
// in dev, JSON at info level elsewhere.
func SetupLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "" || env == "dev" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
