// Package tasks implements the bot's scheduled tasks and their registration.
package tasks

import (
	"log/slog"

	"quotebot/internal/config"
	"quotebot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
