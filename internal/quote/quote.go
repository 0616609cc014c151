// Package quote turns an inbound reply-with-command event into a quote
// attempt ready for persistence. It classifies the quoted message, resolves
// forward attribution, and rejects attempts that cannot become quotes.
package quote

import (
	"database/sql"
	"time"

	"github.com/go-telegram/bot/models"

	"quotebot/internal/database"
	"quotebot/internal/format"
)

// RejectReason says why an attempt was refused before persistence. These are
// user-facing outcomes, not errors: the handler renders them into a reply.
type RejectReason int

const (
	// RejectNone means the attempt is valid.
	RejectNone RejectReason = iota
	// RejectAutoForward refuses automatic channel forwards.
	RejectAutoForward
	// RejectUnsupportedContent refuses messages with neither text nor a
	// non-sticker photo.
	RejectUnsupportedContent
	// RejectSelfQuote refuses quoting one's own messages.
	RejectSelfQuote
)

// Attempt is a fully derived quote attempt plus the Telegram users involved,
// so the handler can upsert them before persisting the quote.
type Attempt struct {
	database.QuoteAttempt

	SentBy      models.User
	QuotedBy    models.User
	ForwardedBy *models.User
}

// Derive builds a quote attempt from a command message that replies to the
// message being quoted. msg.From and msg.ReplyToMessage must be non-nil.
//
// Attribution rules: if the quoted message was itself forwarded from a known
// user, the quote is attributed to that original sender and the relayer is
// recorded as forwarder with both timestamps kept. Forwards whose origin is
// hidden cannot be attributed, so they count as authored by the relayer.
func Derive(msg *models.Message) (*Attempt, RejectReason) {
	quoted := msg.ReplyToMessage

	if quoted.ForwardOrigin != nil && quoted.ForwardOrigin.Type == models.MessageOriginTypeChannel {
		return nil, RejectAutoForward
	}

	attempt := &Attempt{
		QuoteAttempt: database.QuoteAttempt{
			ChatID:    msg.Chat.ID,
			MessageID: int64(quoted.ID),
			QuotedAt:  time.Unix(int64(msg.Date), 0).UTC(),
		},
		QuotedBy: *msg.From,
	}
	attempt.QuotedByID = msg.From.ID

	switch {
	case len(quoted.Photo) > 0 && quoted.Sticker == nil:
		attempt.MessageType = database.MessageTypePhoto
		attempt.FileID = sql.NullString{String: largestPhoto(quoted.Photo).FileID, Valid: true}
		if quoted.Caption != "" {
			attempt.Content = sql.NullString{String: quoted.Caption, Valid: true}
			attempt.ContentHTML = sql.NullString{
				String: format.EntitiesToHTML(quoted.Caption, quoted.CaptionEntities),
				Valid:  true,
			}
		}
	case quoted.Text != "":
		attempt.MessageType = database.MessageTypeText
		attempt.Content = sql.NullString{String: quoted.Text, Valid: true}
		attempt.ContentHTML = sql.NullString{
			String: format.EntitiesToHTML(quoted.Text, quoted.Entities),
			Valid:  true,
		}
	default:
		return nil, RejectUnsupportedContent
	}

	if quoted.ForwardOrigin != nil &&
		quoted.ForwardOrigin.Type == models.MessageOriginTypeUser &&
		quoted.ForwardOrigin.MessageOriginUser != nil {
		origin := quoted.ForwardOrigin.MessageOriginUser

		attempt.IsForward = true
		attempt.SentBy = origin.SenderUser
		attempt.SentAt = time.Unix(int64(origin.Date), 0).UTC()
		attempt.ForwardedBy = quoted.From
		attempt.ForwardedByID = sql.NullInt64{Int64: quoted.From.ID, Valid: true}
		attempt.ForwardedAt = sql.NullTime{Time: time.Unix(int64(quoted.Date), 0).UTC(), Valid: true}
	} else {
		attempt.SentBy = *quoted.From
		attempt.SentAt = time.Unix(int64(quoted.Date), 0).UTC()
	}
	attempt.SentByID = attempt.SentBy.ID

	if attempt.SentByID == attempt.QuotedByID {
		return nil, RejectSelfQuote
	}

	return attempt, RejectNone
}

func largestPhoto(photos []models.PhotoSize) models.PhotoSize {
	largest := photos[0]
	for _, p := range photos[1:] {
		if p.Width*p.Height > largest.Width*largest.Height {
			largest = p
		}
	}
	return largest
}

// UserProfile converts a Telegram user into the store's upsert input.
func UserProfile(u models.User) database.UserProfile {
	profile := database.UserProfile{
		ID:        u.ID,
		FirstName: u.FirstName,
		Username:  u.Username,
	}
	if u.LastName != "" {
		profile.LastName = sql.NullString{String: u.LastName, Valid: true}
	}
	return profile
}

// ChatProfile converts a Telegram chat into the store's upsert input.
func ChatProfile(c models.Chat) database.ChatProfile {
	profile := database.ChatProfile{
		ID:   c.ID,
		Type: chatType(c.Type),
	}
	if c.Title != "" {
		profile.Title = sql.NullString{String: c.Title, Valid: true}
	}
	return profile
}

func chatType(t models.ChatType) database.ChatType {
	switch t {
	case models.ChatTypeSupergroup:
		return database.ChatTypeSupergroup
	case models.ChatTypeChannel:
		return database.ChatTypeChannel
	case models.ChatTypePrivate:
		return database.ChatTypePrivate
	default:
		return database.ChatTypeGroup
	}
}
