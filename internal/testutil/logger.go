package testutil

import (
	"io"
	"log/slog"

	"github.com/facelocker/facelocker-server/internal/logger"
)

// MakeNoopLogger returns a Logger that discards everything.
func MakeNoopLogger() *logger.Logger {
	return &logger.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))}
}
