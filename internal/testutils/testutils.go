// Package testutils provides shared test doubles: in-memory store
// implementations matching the semantics of the Postgres ones, so service
// and worker logic can be tested without a database.
package testutils

import (
	"io"
	"log/slog"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
