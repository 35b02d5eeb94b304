// Command taskrelay runs the task relay service and its admin helpers.
package main

import (
	"log/slog"
	"os"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
