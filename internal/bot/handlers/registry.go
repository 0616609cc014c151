package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler bundles a handler with how it should be matched.
// MatchFunc takes precedence; otherwise HandlerType/Pattern/MatchType are
// used for pattern-based registration.
type RegisteredHandler struct {
	MatchFunc   tgbot.MatchFunc
	HandlerType tgbot.HandlerType
	Pattern     string
	MatchType   tgbot.MatchType
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
}

// RegisterAllHandlers initializes and returns all bot handlers keyed by a
// stable name used for logging.
func RegisterAllHandlers(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["addquote"] = RegisteredHandler{
		MatchFunc: MatchAddQuote,
		Handler:   NewAddQuoteHandler(deps),
	}
	handlers["randquote"] = RegisteredHandler{
		MatchFunc: MatchRandQuote,
		Handler:   NewRandQuoteHandler(deps),
	}
	handlers["migration"] = RegisteredHandler{
		MatchFunc: MatchMigration,
		Handler:   NewMigrationHandler(deps),
	}
	handlers["membership"] = RegisteredHandler{
		MatchFunc: MatchMembership,
		Handler:   NewMembershipHandler(deps),
	}

	return handlers
}
