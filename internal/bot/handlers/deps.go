// Package handlers contains the Telegram message handlers, their
// registration logic, and the quote command vocabulary.
package handlers

import (
	"log/slog"

	"quotebot/internal/config"
	"quotebot/internal/database"
)

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger *slog.Logger
	Config *config.Config
	Store  database.Store
}
