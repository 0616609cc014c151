package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"quotebot/internal/database"
	"quotebot/internal/quote"
)

// MatchMigration reports whether an update is a group-to-supergroup
// migration service message.
func MatchMigration(update *models.Update) bool {
	msg := update.Message
	return msg != nil && (msg.MigrateToChatID != 0 || msg.MigrateFromChatID != 0)
}

// NewMigrationHandler returns the handler for chat migration notices.
func NewMigrationHandler(deps HandlerDeps) bot.HandlerFunc {
	return migrationHandler{deps}.Handle
}

type migrationHandler struct {
	deps HandlerDeps
}

// Handle re-keys the chat when a group becomes a supergroup. Telegram sends
// two notices: one in the old chat announcing the new id, one in the new
// chat referencing the old id. Only the latter is acted on, so the re-key
// happens exactly once. Migration notices are expected events: they are
// logged and never produce a user-facing reply.
func (h migrationHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	log := h.deps.Logger.With("handler", "migration")

	if msg.MigrateFromChatID == 0 {
		log.DebugContext(ctx, "Ignoring migrate-to notice",
			"chat_id", msg.Chat.ID, "migrate_to_chat_id", msg.MigrateToChatID)
		return
	}

	oldID := msg.MigrateFromChatID
	newID := msg.Chat.ID

	err := h.deps.Store.WithTx(ctx, func(tx *database.Tx) error {
		err := tx.MigrateChat(ctx, oldID, newID)
		if errors.Is(err, database.ErrChatNotFound) {
			// No history under the old id; just record the new chat.
			log.DebugContext(ctx, "No chat to migrate, recording new chat", "old_id", oldID, "new_id", newID)
			return tx.UpsertChat(ctx, quote.ChatProfile(msg.Chat))
		}
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to migrate chat", "old_id", oldID, "new_id", newID, "error", err)
		return
	}

	log.InfoContext(ctx, "Chat migrated to supergroup", "old_id", oldID, "new_id", newID)
}
