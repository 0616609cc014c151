package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"quotebot/internal/database"
	"quotebot/internal/format"
)

// MatchRandQuote reports whether an update is a /randquote command in a
// group chat.
func MatchRandQuote(update *models.Update) bool {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return false
	}
	if msg.Chat.Type != models.ChatTypeGroup && msg.Chat.Type != models.ChatTypeSupergroup {
		return false
	}
	return commandName(msg.Text) == "randquote"
}

// NewRandQuoteHandler returns the handler for the /randquote command.
func NewRandQuoteHandler(deps HandlerDeps) bot.HandlerFunc {
	return randQuoteHandler{deps}.Handle
}

type randQuoteHandler struct {
	deps HandlerDeps
}

// Handle posts a random recorded quote back into the chat and records the
// posted message as a sent quote message linked to the quote it displayed.
func (h randQuoteHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	log := h.deps.Logger.With("handler", "randquote", "chat_id", msg.Chat.ID)

	var picked *database.Quote
	var sender *database.User
	err := h.deps.Store.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		picked, err = tx.GetRandomQuote(ctx, msg.Chat.ID)
		if err != nil || picked == nil {
			return err
		}
		sender, err = tx.GetUserByID(ctx, picked.SentByID)
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to pick a random quote", "error", err)
		return
	}

	if picked == nil {
		h.replyText(ctx, b, msg, "no quotes in this chat yet")
		return
	}

	sent := h.sendQuote(ctx, b, msg.Chat.ID, picked, sender)
	if sent == nil {
		return
	}

	err = h.deps.Store.WithTx(ctx, func(tx *database.Tx) error {
		_, err := tx.RecordSentQuoteMessage(ctx, msg.Chat.ID, int64(sent.ID),
			sql.NullInt64{Int64: picked.ID, Valid: true})
		return err
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to record sent quote message", "quote_id", picked.ID, "error", err)
		return
	}

	log.InfoContext(ctx, "Posted random quote", "quote_id", picked.ID)
}

// sendQuote renders the quote into the chat: photo quotes as a photo with an
// attributed caption, text quotes as an HTML blockquote.
func (h randQuoteHandler) sendQuote(ctx context.Context, b *bot.Bot, chatID int64, q *database.Quote, sender *database.User) *models.Message {
	attribution := attributionLine(q, sender)

	var sent *models.Message
	var err error
	if q.MessageType == database.MessageTypePhoto && q.FileID.Valid {
		caption := attribution
		if q.Content.Valid && q.Content.String != "" {
			caption = fmt.Sprintf("%s\n%s", q.Content.String, attribution)
		}
		sent, err = b.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: q.FileID.String},
			Caption: caption,
		})
	} else {
		body := ""
		if q.ContentHTML.Valid {
			body = q.ContentHTML.String
		}
		sent, err = b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      fmt.Sprintf("<blockquote>%s</blockquote>%s", body, format.EscapeHTML(attribution)),
			ParseMode: models.ParseModeHTML,
		})
	}
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send quote", "quote_id", q.ID, "error", err)
		return nil
	}
	return sent
}

func attributionLine(q *database.Quote, sender *database.User) string {
	name := "unknown"
	if sender != nil {
		name = sender.FirstName
		if sender.LastName.Valid && sender.LastName.String != "" {
			name += " " + sender.LastName.String
		}
	}
	return fmt.Sprintf("— %s, %s", name, q.SentAt.Format("2006-01-02"))
}

func (h randQuoteHandler) replyText(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", msg.Chat.ID)
	}
}
