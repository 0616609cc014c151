package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"quotebot/internal/database"
	"quotebot/internal/quote"
)

// MatchMembership reports whether an update is a member-joined or
// member-left service message.
func MatchMembership(update *models.Update) bool {
	msg := update.Message
	return msg != nil && (len(msg.NewChatMembers) > 0 || msg.LeftChatMember != nil)
}

// NewMembershipHandler returns the handler that maintains the chat
// membership join table from Telegram service messages.
func NewMembershipHandler(deps HandlerDeps) bot.HandlerFunc {
	return membershipHandler{deps}.Handle
}

type membershipHandler struct {
	deps HandlerDeps
}

func (h membershipHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	log := h.deps.Logger.With("handler", "membership", "chat_id", msg.Chat.ID)

	err := h.deps.Store.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.UpsertChat(ctx, quote.ChatProfile(msg.Chat)); err != nil {
			return err
		}

		for _, member := range msg.NewChatMembers {
			if member.IsBot {
				continue
			}
			if err := tx.UpsertUser(ctx, quote.UserProfile(member)); err != nil {
				return err
			}
			if err := tx.AddMembership(ctx, member.ID, msg.Chat.ID); err != nil {
				return err
			}
			log.InfoContext(ctx, "Member added", "user_id", member.ID)
		}

		if left := msg.LeftChatMember; left != nil && !left.IsBot {
			err := tx.RemoveMembership(ctx, left.ID, msg.Chat.ID)
			if errors.Is(err, database.ErrNotMember) {
				// Stale notice for a member that was never recorded.
				log.DebugContext(ctx, "Left member was not recorded", "user_id", left.ID)
			} else if err != nil {
				return err
			} else {
				log.InfoContext(ctx, "Member removed", "user_id", left.ID)
			}
		}
		return nil
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to update memberships", "error", err)
	}
}
