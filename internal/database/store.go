package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

var (
	// ErrChatNotFound is returned by MigrateChat when no chat exists under
	// the old id.
	ErrChatNotFound = errors.New("chat not found")

	// ErrNotMember is returned by RemoveMembership when the membership row
	// does not exist.
	ErrNotMember = errors.New("user is not a member of the chat")

	// ErrDedupConflict indicates multiple quote rows matched the dedup key.
	// The unique constraint makes this impossible unless the database was
	// modified out of band, so it is surfaced as an internal fault.
	ErrDedupConflict = errors.New("multiple quotes matched the dedup key")
)

// Store is the entry point for all database operations. Mutating operations
// run inside a transaction scope obtained through WithTx.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// WithTx runs fn inside a transaction: commit if fn returns nil,
	// rollback otherwise. The transaction handle is released on every exit
	// path, including panics and context cancellation.
	WithTx(ctx context.Context, fn func(tx *Tx) error) error

	// RunMaintenance performs database maintenance tasks like VACUUM.
	RunMaintenance(ctx context.Context) error
}

// Tx exposes the repository operations staged against one transaction.
// Nothing is durable until the enclosing WithTx scope commits.
type Tx struct {
	tx     *sqlx.Tx
	logger *slog.Logger
}

// sqlxStore implements Store on top of sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if err := fn(&Tx{tx: tx, logger: s.logger}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil
	return nil
}

// RunMaintenance executes a VACUUM command. SQLite requires VACUUM to run
// outside a transaction, so this bypasses WithTx.
func (s *sqlxStore) RunMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// UpsertUser inserts a users row or overwrites its name fields in place,
// last writer wins. Idempotent under retries for the same id.
func (t *Tx) UpsertUser(ctx context.Context, profile UserProfile) error {
	now := time.Now().UTC()
	query := `
        INSERT INTO users (id, first_name, last_name, username, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            first_name = excluded.first_name,
            last_name  = excluded.last_name,
            username   = excluded.username,
            updated_at = excluded.updated_at;
    `

	_, err := t.tx.ExecContext(ctx, query,
		profile.ID, profile.FirstName, profile.LastName, profile.Username, now, now)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error upserting user", "user_id", profile.ID, "error", err)
		return fmt.Errorf("failed to upsert user %d: %w", profile.ID, err)
	}

	t.logger.DebugContext(ctx, "User upserted", "user_id", profile.ID)
	return nil
}

// UpsertChat inserts a chats row or overwrites its type and title in place.
func (t *Tx) UpsertChat(ctx context.Context, profile ChatProfile) error {
	now := time.Now().UTC()
	query := `
        INSERT INTO chats (id, type, title, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            type       = excluded.type,
            title      = excluded.title,
            updated_at = excluded.updated_at;
    `

	_, err := t.tx.ExecContext(ctx, query,
		profile.ID, profile.Type, profile.Title, now, now)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error upserting chat", "chat_id", profile.ID, "error", err)
		return fmt.Errorf("failed to upsert chat %d: %w", profile.ID, err)
	}

	t.logger.DebugContext(ctx, "Chat upserted", "chat_id", profile.ID)
	return nil
}

// MigrateChat rewrites a chat's primary identity from oldID to newID,
// carrying every foreign-key reference along. Returns ErrChatNotFound when
// no chat exists under oldID. The whole re-key happens inside the enclosing
// transaction, so it is atomic.
func (t *Tx) MigrateChat(ctx context.Context, oldID, newID int64) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE chats SET id = ?, type = 'SUPERGROUP', updated_at = ? WHERE id = ?`,
		newID, time.Now().UTC(), oldID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error migrating chat", "old_id", oldID, "new_id", newID, "error", err)
		return fmt.Errorf("failed to migrate chat %d to %d: %w", oldID, newID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check migrated chat rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("migrate chat %d: %w", oldID, ErrChatNotFound)
	}

	// Carry the history: every reference to the old id follows the chat.
	for _, table := range []string{"quotes", "chat_memberships", "sent_quote_messages"} {
		query := fmt.Sprintf(`UPDATE %s SET chat_id = ? WHERE chat_id = ?`, table)
		if _, err := t.tx.ExecContext(ctx, query, newID, oldID); err != nil {
			t.logger.ErrorContext(ctx, "Error migrating chat references",
				"table", table, "old_id", oldID, "new_id", newID, "error", err)
			return fmt.Errorf("failed to migrate %s references for chat %d: %w", table, oldID, err)
		}
	}

	t.logger.InfoContext(ctx, "Chat migrated", "old_id", oldID, "new_id", newID)
	return nil
}

// AddMembership records that a user belongs to a chat. Adding an existing
// membership is a no-op.
func (t *Tx) AddMembership(ctx context.Context, userID, chatID int64) error {
	query := `
        INSERT INTO chat_memberships (user_id, chat_id)
        VALUES (?, ?)
        ON CONFLICT (user_id, chat_id) DO NOTHING;
    `

	if _, err := t.tx.ExecContext(ctx, query, userID, chatID); err != nil {
		t.logger.ErrorContext(ctx, "Error adding membership", "user_id", userID, "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to add membership (user %d, chat %d): %w", userID, chatID, err)
	}
	return nil
}

// RemoveMembership deletes the membership row. Returns ErrNotMember when the
// row did not exist, so callers can tell removal from a stale notification.
func (t *Tx) RemoveMembership(ctx context.Context, userID, chatID int64) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM chat_memberships WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error removing membership", "user_id", userID, "chat_id", chatID, "error", err)
		return fmt.Errorf("failed to remove membership (user %d, chat %d): %w", userID, chatID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removed membership rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("remove membership (user %d, chat %d): %w", userID, chatID, ErrNotMember)
	}
	return nil
}

// AddQuote records a quote attempt. It first resolves the dedup key
// (chat id, sent at, sent by, content html); a live match returns
// QuoteAlreadyExists with the existing row, a soft-deleted match returns
// QuotePreviouslyDeleted without touching the row, and no match inserts a
// fresh quote with deleted=false and score=0.
//
// Concurrent attempts racing on the same key are serialized by the unique
// constraint: the loser's insert fails the constraint and is translated
// back into the appropriate business outcome instead of a raw error.
func (t *Tx) AddQuote(ctx context.Context, attempt QuoteAttempt) (*Quote, AddQuoteResult, error) {
	existing, result, err := t.findByDedupKey(ctx, attempt)
	if err != nil {
		return nil, 0, err
	}
	if result != 0 {
		return existing, result, nil
	}

	now := time.Now().UTC()
	quote := &Quote{
		CreatedAt:     now,
		UpdatedAt:     now,
		ChatID:        attempt.ChatID,
		MessageID:     attempt.MessageID,
		IsForward:     attempt.IsForward,
		ForwardedByID: attempt.ForwardedByID,
		ForwardedAt:   attempt.ForwardedAt,
		SentByID:      attempt.SentByID,
		SentAt:        attempt.SentAt,
		QuotedByID:    attempt.QuotedByID,
		QuotedAt:      attempt.QuotedAt,
		MessageType:   attempt.MessageType,
		Content:       attempt.Content,
		ContentHTML:   attempt.ContentHTML,
		FileID:        attempt.FileID,
		Deleted:       false,
		Score:         0,
	}

	query := `
        INSERT INTO quotes (
            chat_id, message_id, is_forward, forwarded_by_id, forwarded_at,
            sent_by_id, sent_at, quoted_by_id, quoted_at, message_type,
            content, content_html, file_id, deleted, score, created_at, updated_at
        ) VALUES (
            :chat_id, :message_id, :is_forward, :forwarded_by_id, :forwarded_at,
            :sent_by_id, :sent_at, :quoted_by_id, :quoted_at, :message_type,
            :content, :content_html, :file_id, :deleted, :score, :created_at, :updated_at
        );
    `

	res, err := t.tx.NamedExecContext(ctx, query, quote)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race or the source message was quoted before.
			existing, result, lookupErr := t.findByDedupKey(ctx, attempt)
			if lookupErr != nil {
				return nil, 0, lookupErr
			}
			if result != 0 {
				return existing, result, nil
			}
			existing, lookupErr = t.findByChatMessage(ctx, attempt.ChatID, attempt.MessageID)
			if lookupErr != nil {
				return nil, 0, lookupErr
			}
			if existing != nil {
				if existing.Deleted {
					return nil, QuotePreviouslyDeleted, nil
				}
				return existing, QuoteAlreadyExists, nil
			}
		}
		t.logger.ErrorContext(ctx, "Error inserting quote",
			"chat_id", attempt.ChatID, "message_id", attempt.MessageID, "error", err)
		return nil, 0, fmt.Errorf("failed to insert quote (chat %d, message %d): %w",
			attempt.ChatID, attempt.MessageID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read inserted quote id: %w", err)
	}
	quote.ID = id

	t.logger.DebugContext(ctx, "Quote added",
		"quote_id", quote.ID, "chat_id", quote.ChatID, "message_id", quote.MessageID)
	return quote, QuoteAdded, nil
}

// findByDedupKey looks up a quote by the dedup key and maps the match to its
// business outcome. A zero result means no match. More than one row matching
// is a data-integrity fault and surfaces ErrDedupConflict.
func (t *Tx) findByDedupKey(ctx context.Context, attempt QuoteAttempt) (*Quote, AddQuoteResult, error) {
	var matches []Quote
	query := `
        SELECT id, created_at, updated_at, chat_id, message_id, is_forward, forwarded_by_id, forwarded_at,
               sent_by_id, sent_at, quoted_by_id, quoted_at, message_type, content, content_html,
               file_id, deleted, score
        FROM quotes
        WHERE chat_id = ? AND sent_at = ? AND sent_by_id = ? AND content_html IS ?;
    `

	err := t.tx.SelectContext(ctx, &matches, query,
		attempt.ChatID, attempt.SentAt, attempt.SentByID, attempt.ContentHTML)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error looking up quote by dedup key",
			"chat_id", attempt.ChatID, "sent_by_id", attempt.SentByID, "error", err)
		return nil, 0, fmt.Errorf("failed to look up quote by dedup key: %w", err)
	}

	switch len(matches) {
	case 0:
		return nil, 0, nil
	case 1:
		quote := matches[0]
		if quote.Deleted {
			return nil, QuotePreviouslyDeleted, nil
		}
		return &quote, QuoteAlreadyExists, nil
	default:
		t.logger.ErrorContext(ctx, "Dedup key matched multiple quotes",
			"chat_id", attempt.ChatID, "sent_by_id", attempt.SentByID, "count", len(matches))
		return nil, 0, fmt.Errorf("dedup lookup (chat %d, sender %d) returned %d rows: %w",
			attempt.ChatID, attempt.SentByID, len(matches), ErrDedupConflict)
	}
}

func (t *Tx) findByChatMessage(ctx context.Context, chatID, messageID int64) (*Quote, error) {
	var quote Quote
	err := t.tx.GetContext(ctx, &quote,
		`SELECT id, created_at, updated_at, chat_id, message_id, is_forward, forwarded_by_id, forwarded_at, sent_by_id, sent_at, quoted_by_id, quoted_at, message_type, content, content_html, file_id, deleted, score FROM quotes WHERE chat_id = ? AND message_id = ?`, chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up quote (chat %d, message %d): %w", chatID, messageID, err)
	}
	return &quote, nil
}

// SoftDeleteQuote flags a quote as deleted without removing the row.
// A soft-deleted quote blocks re-adding the same utterance.
func (t *Tx) SoftDeleteQuote(ctx context.Context, quoteID int64) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE quotes SET deleted = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), quoteID)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error soft-deleting quote", "quote_id", quoteID, "error", err)
		return fmt.Errorf("failed to soft-delete quote %d: %w", quoteID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check soft-deleted quote rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("soft-delete quote %d: no such quote", quoteID)
	}
	return nil
}

// RecordSentQuoteMessage records a bot message that rendered a quote into a
// chat, linking the posted message id back to the quote it displayed.
func (t *Tx) RecordSentQuoteMessage(ctx context.Context, chatID, messageID int64, quoteID sql.NullInt64) (*SentQuoteMessage, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO sent_quote_messages (chat_id, quote_id, message_id, created_at) VALUES (?, ?, ?, ?)`,
		chatID, quoteID, messageID, now)
	if err != nil {
		t.logger.ErrorContext(ctx, "Error recording sent quote message",
			"chat_id", chatID, "message_id", messageID, "error", err)
		return nil, fmt.Errorf("failed to record sent quote message (chat %d): %w", chatID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read sent quote message id: %w", err)
	}

	return &SentQuoteMessage{
		ID:        id,
		ChatID:    chatID,
		QuoteID:   quoteID,
		MessageID: messageID,
		CreatedAt: now,
	}, nil
}

// GetQuoteByID returns the quote with the given id, or (nil, nil) if absent.
func (t *Tx) GetQuoteByID(ctx context.Context, id int64) (*Quote, error) {
	var quote Quote
	err := t.tx.GetContext(ctx, &quote, `SELECT id, created_at, updated_at, chat_id, message_id, is_forward, forwarded_by_id, forwarded_at, sent_by_id, sent_at, quoted_by_id, quoted_at, message_type, content, content_html, file_id, deleted, score FROM quotes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote %d: %w", id, err)
	}
	return &quote, nil
}

// GetUserByID returns the user with the given id, or (nil, nil) if absent.
func (t *Tx) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := t.tx.GetContext(ctx, &user, `SELECT id, first_name, last_name, username, created_at, updated_at FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

// GetChatByID returns the chat with the given id, or (nil, nil) if absent.
func (t *Tx) GetChatByID(ctx context.Context, id int64) (*Chat, error) {
	var chat Chat
	err := t.tx.GetContext(ctx, &chat, `SELECT id, type, title, created_at, updated_at FROM chats WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %d: %w", id, err)
	}
	return &chat, nil
}

// GetRandomQuote returns a random non-deleted quote from the chat, or
// (nil, nil) when the chat has none.
func (t *Tx) GetRandomQuote(ctx context.Context, chatID int64) (*Quote, error) {
	var quote Quote
	err := t.tx.GetContext(ctx, &quote,
		`SELECT id, created_at, updated_at, chat_id, message_id, is_forward, forwarded_by_id, forwarded_at, sent_by_id, sent_at, quoted_by_id, quoted_at, message_type, content, content_html, file_id, deleted, score FROM quotes WHERE chat_id = ? AND deleted = 0 ORDER BY RANDOM() LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get random quote for chat %d: %w", chatID, err)
	}
	return &quote, nil
}

// IsMember reports whether the membership row exists.
func (t *Tx) IsMember(ctx context.Context, userID, chatID int64) (bool, error) {
	var count int
	err := t.tx.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM chat_memberships WHERE user_id = ? AND chat_id = ?`, userID, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership (user %d, chat %d): %w", userID, chatID, err)
	}
	return count > 0, nil
}

// isUniqueViolation reports whether err is a SQLite unique or primary key
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}
