package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"quotebot/internal/database"
	"quotebot/internal/quote"
)

// MatchAddQuote reports whether an update is an addquote-family command
// replying to another message in a group chat.
func MatchAddQuote(update *models.Update) bool {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.ReplyToMessage == nil {
		return false
	}
	if msg.Chat.Type != models.ChatTypeGroup && msg.Chat.Type != models.ChatTypeSupergroup {
		return false
	}
	_, ok := parseQuoteCommand(msg.Text)
	return ok
}

// NewAddQuoteHandler returns the handler for the addquote command family.
func NewAddQuoteHandler(deps HandlerDeps) bot.HandlerFunc {
	return addQuoteHandler{deps}.Handle
}

type addQuoteHandler struct {
	deps HandlerDeps
}

// Handle records the quoted message. The whole request runs in one
// transaction scope: user and chat upserts, memberships, and the quote
// insert commit together or not at all; the reply goes out only after the
// transaction has been released.
func (h addQuoteHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	log := h.deps.Logger.With("handler", "addquote", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

	cmd, ok := parseQuoteCommand(msg.Text)
	if !ok {
		return
	}

	attempt, reason := quote.Derive(msg)
	if reason != quote.RejectNone {
		log.InfoContext(ctx, "Quote attempt rejected", "reason", reason)
		h.reply(ctx, b, msg, rejectionReply(reason, cmd))
		return
	}

	var result database.AddQuoteResult
	err := h.deps.Store.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.UpsertChat(ctx, quote.ChatProfile(msg.Chat)); err != nil {
			return err
		}
		if err := tx.UpsertUser(ctx, quote.UserProfile(attempt.SentBy)); err != nil {
			return err
		}
		if err := tx.UpsertUser(ctx, quote.UserProfile(attempt.QuotedBy)); err != nil {
			return err
		}
		if attempt.ForwardedBy != nil {
			if err := tx.UpsertUser(ctx, quote.UserProfile(*attempt.ForwardedBy)); err != nil {
				return err
			}
		}

		// The quoter and the user who put the message in this chat are
		// known members; a forward's original sender may not be.
		if err := tx.AddMembership(ctx, attempt.QuotedBy.ID, msg.Chat.ID); err != nil {
			return err
		}
		relayerID := attempt.SentBy.ID
		if attempt.ForwardedBy != nil {
			relayerID = attempt.ForwardedBy.ID
		}
		if err := tx.AddMembership(ctx, relayerID, msg.Chat.ID); err != nil {
			return err
		}

		var err error
		_, result, err = tx.AddQuote(ctx, attempt.QuoteAttempt)
		return err
	})
	if err != nil {
		// Infrastructure fault: everything rolled back, drop the update.
		log.ErrorContext(ctx, "Failed to record quote", "error", err)
		return
	}

	log.InfoContext(ctx, "Quote attempt processed", "result", result.String())
	h.reply(ctx, b, msg, resultReply(result, cmd))
}

func (h addQuoteHandler) reply(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID)
	}
}
