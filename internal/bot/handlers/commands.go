package handlers

import (
	"strings"

	"quotebot/internal/database"
	"quotebot/internal/format"
	"quotebot/internal/quote"
)

// Emoji used in command replies.
const (
	loudlyCryingFace           = "\U0001F62D"
	poutingFace                = "\U0001F621"
	smilingFaceWithSunglasses  = "\U0001F60E"
	smilingFaceWithOpenMouth   = "\U0001F603"
	frowningFace               = "☹"
	familyManGirlBoy           = "\U0001F468‍\U0001F467‍\U0001F466"
	flexedBiceps               = "\U0001F4AA"
	vampire                    = "\U0001F9DB"
	graduationCap              = "\U0001F393"
)

// commandPrefixes maps each quote command prefix to the emoji interleaved
// into its replies. The plain "add" prefix gets no emoji.
var commandPrefixes = map[string]string{
	"add":  "",
	"mad":  poutingFace,
	"sad":  loudlyCryingFace,
	"rad":  smilingFaceWithSunglasses,
	"glad": smilingFaceWithOpenMouth,
	"bad":  frowningFace,
	"dad":  familyManGirlBoy,
	"chad": flexedBiceps,
	"vlad": vampire,
	"grad": graduationCap,
}

// commandSuffixes lists the accepted command suffixes, misspelling included.
var commandSuffixes = []string{"quote", "qoute"}

// quoteCommand is a parsed member of the addquote command family.
type quoteCommand struct {
	Prefix string
	Noun   string // the suffix as typed, used as the noun in replies
	Verb   string // past tense of the prefix: "added", "madded", ...
	Emoji  string
}

// commandName extracts the bare command from message text: the token after
// the leading slash, up to an @botname mention or the first space.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	name := text[1:]
	if i := strings.IndexAny(name, "@ "); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// parseQuoteCommand matches text against the prefix x suffix command family
// and derives the reply vocabulary for the matched command.
func parseQuoteCommand(text string) (quoteCommand, bool) {
	name := commandName(text)
	if name == "" {
		return quoteCommand{}, false
	}

	for prefix, emoji := range commandPrefixes {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := name[len(prefix):]
		for _, s := range commandSuffixes {
			if suffix == s {
				return quoteCommand{
					Prefix: prefix,
					Noun:   suffix,
					Verb:   strings.Replace(prefix+"ded", "ddd", "dd", 1),
					Emoji:  emoji,
				}, true
			}
		}
	}
	return quoteCommand{}, false
}

// rejectionReply renders a validation rejection into reply text.
func rejectionReply(reason quote.RejectReason, cmd quoteCommand) string {
	var response string
	switch reason {
	case quote.RejectAutoForward:
		response = "can't " + cmd.Noun + " auto-forwarded channel posts"
	case quote.RejectUnsupportedContent:
		response = "can only " + cmd.Noun + " text and/or photo messages"
	case quote.RejectSelfQuote:
		response = "can't " + cmd.Noun + " your own messages"
	default:
		response = "can't " + cmd.Noun + " that"
	}
	return format.Interleave(response, cmd.Emoji)
}

// resultReply renders a quote-add business outcome into reply text.
func resultReply(result database.AddQuoteResult, cmd quoteCommand) string {
	var response string
	switch result {
	case database.QuoteAdded:
		response = cmd.Noun + " " + cmd.Verb
	case database.QuoteAlreadyExists:
		response = cmd.Noun + " already exists"
	case database.QuotePreviouslyDeleted:
		response = cmd.Noun + " was previously deleted"
	default:
		response = "invalid " + cmd.Noun + " status found"
	}
	return format.Interleave(response, cmd.Emoji)
}
