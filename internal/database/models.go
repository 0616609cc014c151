package database

import (
	"database/sql"
	"time"
)

// ChatType is a Telegram chat classification as stored in the chats table.
type ChatType string

const (
	ChatTypeGroup      ChatType = "GROUP"
	ChatTypeSupergroup ChatType = "SUPERGROUP"
	ChatTypeChannel    ChatType = "CHANNEL"
	ChatTypePrivate    ChatType = "PRIVATE"
)

// MessageType classifies what kind of message a quote captured.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypePhoto MessageType = "PHOTO"
)

// User is a chat participant. The id is assigned by Telegram and never
// changes; name and username are overwritten on every observation.
type User struct {
	ID        int64          `db:"id"`
	FirstName string         `db:"first_name"`
	LastName  sql.NullString `db:"last_name"`
	Username  string         `db:"username"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Chat is a group conversation the bot participates in. Its id is mutable:
// when Telegram promotes a group to a supergroup the row is re-keyed in
// place and all history follows it.
type Chat struct {
	ID        int64          `db:"id"`
	Type      ChatType       `db:"type"`
	Title     sql.NullString `db:"title"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// Quote is an immutable record of a quoted message. Rows are never removed;
// the deleted flag soft-deletes them and blocks re-adding.
type Quote struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID    int64 `db:"chat_id"`
	MessageID int64 `db:"message_id"`

	IsForward     bool           `db:"is_forward"`
	ForwardedByID sql.NullInt64  `db:"forwarded_by_id"`
	ForwardedAt   sql.NullTime   `db:"forwarded_at"`
	SentByID      int64          `db:"sent_by_id"`
	SentAt        time.Time      `db:"sent_at"`
	QuotedByID    int64          `db:"quoted_by_id"`
	QuotedAt      time.Time      `db:"quoted_at"`
	MessageType   MessageType    `db:"message_type"`
	Content       sql.NullString `db:"content"`
	ContentHTML   sql.NullString `db:"content_html"`
	FileID        sql.NullString `db:"file_id"`
	Deleted       bool           `db:"deleted"`
	Score         int64          `db:"score"`
}

// SentQuoteMessage links a bot message that rendered a quote to the quote it
// displayed. QuoteID is nullable so the row survives quote deletion.
type SentQuoteMessage struct {
	ID        int64         `db:"id"`
	ChatID    int64         `db:"chat_id"`
	QuoteID   sql.NullInt64 `db:"quote_id"`
	MessageID int64         `db:"message_id"`
	CreatedAt time.Time     `db:"created_at"`
}

// Vote is a user's directional vote on a quote, unique per (user, quote).
// Voting itself is not implemented yet; the table exists for forward
// compatibility with score aggregation.
type Vote struct {
	ID        int64 `db:"id"`
	UserID    int64 `db:"user_id"`
	QuoteID   int64 `db:"quote_id"`
	Direction int64 `db:"direction"`
}

// UserProfile carries the externally observed attributes used to upsert a
// users row.
type UserProfile struct {
	ID        int64
	FirstName string
	LastName  sql.NullString
	Username  string
}

// ChatProfile carries the externally observed attributes used to upsert a
// chats row.
type ChatProfile struct {
	ID    int64
	Type  ChatType
	Title sql.NullString
}

// QuoteAttempt bundles everything needed to record a quote. It is produced
// by the derivation layer from an inbound reply-with-command event.
type QuoteAttempt struct {
	ChatID    int64
	MessageID int64

	IsForward     bool
	ForwardedByID sql.NullInt64
	ForwardedAt   sql.NullTime
	SentByID      int64
	SentAt        time.Time
	QuotedByID    int64
	QuotedAt      time.Time

	MessageType MessageType
	Content     sql.NullString
	ContentHTML sql.NullString
	FileID      sql.NullString
}

// AddQuoteResult is the business outcome of an AddQuote call.
type AddQuoteResult int

const (
	// QuoteAdded means a new quote row was inserted.
	QuoteAdded AddQuoteResult = iota + 1
	// QuoteAlreadyExists means an identical utterance is already recorded.
	QuoteAlreadyExists
	// QuotePreviouslyDeleted means the matching quote was soft-deleted;
	// re-adding is rejected rather than reviving it.
	QuotePreviouslyDeleted
)

// String returns a human-readable name for logging.
func (r AddQuoteResult) String() string {
	switch r {
	case QuoteAdded:
		return "added"
	case QuoteAlreadyExists:
		return "already_exists"
	case QuotePreviouslyDeleted:
		return "previously_deleted"
	default:
		return "unknown"
	}
}
