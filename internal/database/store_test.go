// Package database_test exercises the store against a real in-memory SQLite
// database with migrations applied.
package database_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"quotebot/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return database.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func withTx(t *testing.T, store database.Store, fn func(tx *database.Tx) error) {
	t.Helper()
	if err := store.WithTx(context.Background(), fn); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func seedUser(t *testing.T, tx *database.Tx, id int64) {
	t.Helper()
	err := tx.UpsertUser(context.Background(), database.UserProfile{
		ID:        id,
		FirstName: fmt.Sprintf("User%d", id),
		Username:  fmt.Sprintf("user%d", id),
	})
	if err != nil {
		t.Fatalf("failed to seed user %d: %v", id, err)
	}
}

func seedChat(t *testing.T, tx *database.Tx, id int64) {
	t.Helper()
	err := tx.UpsertChat(context.Background(), database.ChatProfile{
		ID:    id,
		Type:  database.ChatTypeGroup,
		Title: sql.NullString{String: fmt.Sprintf("Chat %d", id), Valid: true},
	})
	if err != nil {
		t.Fatalf("failed to seed chat %d: %v", id, err)
	}
}

var testSentAt = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func textAttempt(chatID, messageID, sentBy, quotedBy int64, content string) database.QuoteAttempt {
	return database.QuoteAttempt{
		ChatID:      chatID,
		MessageID:   messageID,
		SentByID:    sentBy,
		SentAt:      testSentAt,
		QuotedByID:  quotedBy,
		QuotedAt:    testSentAt.Add(time.Minute),
		MessageType: database.MessageTypeText,
		Content:     sql.NullString{String: content, Valid: true},
		ContentHTML: sql.NullString{String: content, Valid: true},
	}
}

func TestUpsertUserIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	withTx(t, store, func(tx *database.Tx) error {
		if err := tx.UpsertUser(ctx, database.UserProfile{ID: 1, FirstName: "Alice", Username: "alice"}); err != nil {
			return err
		}
		return tx.UpsertUser(ctx, database.UserProfile{
			ID:        1,
			FirstName: "Alicia",
			LastName:  sql.NullString{String: "Smith", Valid: true},
			Username:  "alicia",
		})
	})

	withTx(t, store, func(tx *database.Tx) error {
		user, err := tx.GetUserByID(ctx, 1)
		if err != nil {
			return err
		}
		if user == nil {
			t.Fatal("expected user 1 to exist")
		}
		if user.FirstName != "Alicia" || user.Username != "alicia" {
			t.Errorf("expected latest values to win, got first_name=%q username=%q", user.FirstName, user.Username)
		}
		if !user.LastName.Valid || user.LastName.String != "Smith" {
			t.Errorf("expected last name Smith, got %+v", user.LastName)
		}
		return nil
	})
}

func TestUpsertChatOverwritesTitle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	withTx(t, store, func(tx *database.Tx) error {
		if err := tx.UpsertChat(ctx, database.ChatProfile{ID: 5, Type: database.ChatTypeGroup}); err != nil {
			return err
		}
		return tx.UpsertChat(ctx, database.ChatProfile{
			ID:    5,
			Type:  database.ChatTypeGroup,
			Title: sql.NullString{String: "Renamed", Valid: true},
		})
	})

	withTx(t, store, func(tx *database.Tx) error {
		chat, err := tx.GetChatByID(ctx, 5)
		if err != nil {
			return err
		}
		if chat == nil {
			t.Fatal("expected chat 5 to exist")
		}
		if !chat.Title.Valid || chat.Title.String != "Renamed" {
			t.Errorf("expected title Renamed, got %+v", chat.Title)
		}
		return nil
	})
}

func TestAddQuoteLifecycle(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	var firstID int64
	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)
		seedUser(t, tx, 20)

		quote, result, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuoteAdded {
			t.Fatalf("expected QuoteAdded, got %v", result)
		}
		if quote.Score != 0 || quote.Deleted {
			t.Errorf("new quote should have score=0 deleted=false, got score=%d deleted=%v", quote.Score, quote.Deleted)
		}
		firstID = quote.ID
		return nil
	})

	// Repeating the identical attempt returns the existing quote.
	withTx(t, store, func(tx *database.Tx) error {
		quote, result, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuoteAlreadyExists {
			t.Fatalf("expected QuoteAlreadyExists, got %v", result)
		}
		if quote.ID != firstID {
			t.Errorf("expected same quote id %d, got %d", firstID, quote.ID)
		}
		return nil
	})

	// A soft-deleted quote blocks re-adding without reviving the row.
	withTx(t, store, func(tx *database.Tx) error {
		return tx.SoftDeleteQuote(ctx, firstID)
	})
	withTx(t, store, func(tx *database.Tx) error {
		quote, result, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuotePreviouslyDeleted {
			t.Fatalf("expected QuotePreviouslyDeleted, got %v", result)
		}
		if quote != nil {
			t.Errorf("expected no quote returned for previously deleted, got %+v", quote)
		}

		stored, err := tx.GetQuoteByID(ctx, firstID)
		if err != nil {
			return err
		}
		if stored == nil || !stored.Deleted {
			t.Errorf("expected original row to remain soft-deleted, got %+v", stored)
		}
		return nil
	})
}

func TestAddQuoteSameUtteranceDifferentChats(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	// The dedup key is scoped to the chat: the same utterance quoted in two
	// chats produces two quotes.
	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedChat(t, tx, 2)
		seedUser(t, tx, 10)
		seedUser(t, tx, 20)

		_, result, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuoteAdded {
			t.Fatalf("expected QuoteAdded in chat 1, got %v", result)
		}

		_, result, err = tx.AddQuote(ctx, textAttempt(2, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuoteAdded {
			t.Fatalf("expected QuoteAdded in chat 2, got %v", result)
		}
		return nil
	})
}

func TestAddQuoteDuplicateMessageID(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	// Quoting the same source message with different content (edited
	// message) hits the (chat, message id) constraint and resolves to the
	// existing quote rather than an integrity error.
	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)
		seedUser(t, tx, 20)

		first, result, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		if result != database.QuoteAdded {
			t.Fatalf("expected QuoteAdded, got %v", result)
		}

		edited := textAttempt(1, 100, 10, 20, "hi (edited)")
		edited.SentAt = testSentAt.Add(time.Hour)
		existing, result, err := tx.AddQuote(ctx, edited)
		if err != nil {
			return err
		}
		if result != database.QuoteAlreadyExists {
			t.Fatalf("expected QuoteAlreadyExists, got %v", result)
		}
		if existing.ID != first.ID {
			t.Errorf("expected existing quote id %d, got %d", first.ID, existing.ID)
		}
		return nil
	})
}

func TestMigrateChat(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	var quoteID int64
	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)
		seedUser(t, tx, 20)

		if err := tx.AddMembership(ctx, 10, 1); err != nil {
			return err
		}

		quote, _, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}
		quoteID = quote.ID

		if _, err := tx.RecordSentQuoteMessage(ctx, 1, 555, sql.NullInt64{Int64: quote.ID, Valid: true}); err != nil {
			return err
		}

		return tx.MigrateChat(ctx, 1, 100)
	})

	withTx(t, store, func(tx *database.Tx) error {
		old, err := tx.GetChatByID(ctx, 1)
		if err != nil {
			return err
		}
		if old != nil {
			t.Errorf("expected old chat id to no longer resolve, got %+v", old)
		}

		migrated, err := tx.GetChatByID(ctx, 100)
		if err != nil {
			return err
		}
		if migrated == nil {
			t.Fatal("expected chat under new id")
		}
		if migrated.Type != database.ChatTypeSupergroup {
			t.Errorf("expected migrated chat to be a supergroup, got %v", migrated.Type)
		}

		quote, err := tx.GetQuoteByID(ctx, quoteID)
		if err != nil {
			return err
		}
		if quote == nil || quote.ChatID != 100 {
			t.Errorf("expected quote to follow the chat to id 100, got %+v", quote)
		}

		member, err := tx.IsMember(ctx, 10, 100)
		if err != nil {
			return err
		}
		if !member {
			t.Error("expected membership to follow the chat to id 100")
		}
		return nil
	})
}

func TestMigrateChatNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	err := store.WithTx(context.Background(), func(tx *database.Tx) error {
		return tx.MigrateChat(context.Background(), 999, 1000)
	})
	if !errors.Is(err, database.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)

		// Adding twice is a no-op, not an error.
		if err := tx.AddMembership(ctx, 10, 1); err != nil {
			return err
		}
		if err := tx.AddMembership(ctx, 10, 1); err != nil {
			return err
		}

		member, err := tx.IsMember(ctx, 10, 1)
		if err != nil {
			return err
		}
		if !member {
			t.Error("expected user 10 to be a member of chat 1")
		}

		if err := tx.RemoveMembership(ctx, 10, 1); err != nil {
			return err
		}
		if err := tx.RemoveMembership(ctx, 10, 1); !errors.Is(err, database.ErrNotMember) {
			t.Errorf("expected ErrNotMember on second removal, got %v", err)
		}

		member, err = tx.IsMember(ctx, 10, 1)
		if err != nil {
			return err
		}
		if member {
			t.Error("expected user 10 to no longer be a member of chat 1")
		}
		return nil
	})
}

func TestWithTxRollback(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the inner error to propagate, got %v", err)
	}

	// Nothing staged before the failure survives the rollback.
	withTx(t, store, func(tx *database.Tx) error {
		user, err := tx.GetUserByID(ctx, 10)
		if err != nil {
			return err
		}
		if user != nil {
			t.Errorf("expected user upsert to be rolled back, got %+v", user)
		}
		chat, err := tx.GetChatByID(ctx, 1)
		if err != nil {
			return err
		}
		if chat != nil {
			t.Errorf("expected chat upsert to be rolled back, got %+v", chat)
		}
		return nil
	})
}

func TestPointLookupsAbsent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	withTx(t, store, func(tx *database.Tx) error {
		user, err := tx.GetUserByID(ctx, 404)
		if err != nil || user != nil {
			t.Errorf("expected (nil, nil) for absent user, got (%+v, %v)", user, err)
		}
		chat, err := tx.GetChatByID(ctx, 404)
		if err != nil || chat != nil {
			t.Errorf("expected (nil, nil) for absent chat, got (%+v, %v)", chat, err)
		}
		quote, err := tx.GetQuoteByID(ctx, 404)
		if err != nil || quote != nil {
			t.Errorf("expected (nil, nil) for absent quote, got (%+v, %v)", quote, err)
		}
		return nil
	})
}

func TestGetRandomQuote(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	withTx(t, store, func(tx *database.Tx) error {
		seedChat(t, tx, 1)
		seedUser(t, tx, 10)
		seedUser(t, tx, 20)

		quote, err := tx.GetRandomQuote(ctx, 1)
		if err != nil {
			return err
		}
		if quote != nil {
			t.Errorf("expected no quote in empty chat, got %+v", quote)
		}

		added, _, err := tx.AddQuote(ctx, textAttempt(1, 100, 10, 20, "hi"))
		if err != nil {
			return err
		}

		quote, err = tx.GetRandomQuote(ctx, 1)
		if err != nil {
			return err
		}
		if quote == nil || quote.ID != added.ID {
			t.Errorf("expected the only quote to be picked, got %+v", quote)
		}

		// Soft-deleted quotes are never picked.
		if err := tx.SoftDeleteQuote(ctx, added.ID); err != nil {
			return err
		}
		quote, err = tx.GetRandomQuote(ctx, 1)
		if err != nil {
			return err
		}
		if quote != nil {
			t.Errorf("expected no pickable quote after soft delete, got %+v", quote)
		}
		return nil
	})
}
