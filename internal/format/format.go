// Package format renders Telegram message text to HTML and formats bot
// replies. Entity offsets follow the Telegram convention of UTF-16 code
// units, so all slicing here happens on UTF-16 encoded text.
package format

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/go-telegram/bot/models"
)

// Interleave inserts the emoji between every word of s. An empty emoji
// returns s unchanged.
func Interleave(s, emoji string) string {
	if emoji == "" {
		return s
	}
	return strings.Join(strings.Split(s, " "), " "+emoji+" ")
}

// tagPair holds the opening and closing HTML for one entity.
type tagPair struct {
	open  string
	close string
}

func entityTags(e models.MessageEntity) (tagPair, bool) {
	switch e.Type {
	case models.MessageEntityTypeBold:
		return tagPair{"<b>", "</b>"}, true
	case models.MessageEntityTypeItalic:
		return tagPair{"<i>", "</i>"}, true
	case models.MessageEntityTypeUnderline:
		return tagPair{"<u>", "</u>"}, true
	case models.MessageEntityTypeStrikethrough:
		return tagPair{"<s>", "</s>"}, true
	case models.MessageEntityTypeSpoiler:
		return tagPair{`<span class="tg-spoiler">`, "</span>"}, true
	case models.MessageEntityTypeCode:
		return tagPair{"<code>", "</code>"}, true
	case models.MessageEntityTypePre:
		if e.Language != "" {
			return tagPair{fmt.Sprintf(`<pre><code class="language-%s">`, e.Language), "</code></pre>"}, true
		}
		return tagPair{"<pre>", "</pre>"}, true
	case models.MessageEntityTypeTextLink:
		return tagPair{fmt.Sprintf(`<a href="%s">`, EscapeHTML(e.URL)), "</a>"}, true
	case models.MessageEntityTypeTextMention:
		if e.User != nil {
			return tagPair{fmt.Sprintf(`<a href="tg://user?id=%d">`, e.User.ID), "</a>"}, true
		}
		return tagPair{}, false
	case models.MessageEntityTypeBlockquote:
		return tagPair{"<blockquote>", "</blockquote>"}, true
	default:
		return tagPair{}, false
	}
}

// EscapeHTML escapes the characters Telegram's HTML parse mode requires.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// EntitiesToHTML renders message text with its entities applied as HTML
// tags, producing the same markup Telegram accepts back in HTML parse mode.
// Unsupported entity types contribute no tags; their text passes through.
func EntitiesToHTML(text string, entities []models.MessageEntity) string {
	if text == "" {
		return ""
	}
	units := utf16.Encode([]rune(text))

	type boundary struct {
		entity models.MessageEntity
		tags   tagPair
		idx    int
	}
	opens := make(map[int][]boundary)
	closes := make(map[int][]boundary)
	for i, e := range entities {
		tags, ok := entityTags(e)
		if !ok {
			continue
		}
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		b := boundary{entity: e, tags: tags, idx: i}
		opens[e.Offset] = append(opens[e.Offset], b)
		closes[e.Offset+e.Length] = append(closes[e.Offset+e.Length], b)
	}

	// Walk the text segment by segment so surrogate pairs never get split.
	positions := make([]int, 0, len(opens)+len(closes)+2)
	positions = append(positions, 0, len(units))
	for p := range opens {
		positions = append(positions, p)
	}
	for p := range closes {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	var sb strings.Builder
	prev := -1
	for i, pos := range positions {
		if pos == prev {
			continue
		}
		prev = pos

		// Inner entities close before outer ones: the tag opened last is
		// the first to close.
		if cs := closes[pos]; len(cs) > 0 {
			sort.SliceStable(cs, func(i, j int) bool {
				if cs[i].entity.Offset != cs[j].entity.Offset {
					return cs[i].entity.Offset > cs[j].entity.Offset
				}
				if cs[i].entity.Length != cs[j].entity.Length {
					return cs[i].entity.Length < cs[j].entity.Length
				}
				return cs[i].idx > cs[j].idx
			})
			for _, b := range cs {
				sb.WriteString(b.tags.close)
			}
		}
		// Outer entities open before inner ones: longer entity opens first.
		if os := opens[pos]; len(os) > 0 {
			sort.SliceStable(os, func(i, j int) bool {
				return os[i].entity.Length > os[j].entity.Length
			})
			for _, b := range os {
				sb.WriteString(b.tags.open)
			}
		}

		next := len(units)
		for _, n := range positions[i+1:] {
			if n > pos {
				next = n
				break
			}
		}
		if pos < next {
			sb.WriteString(EscapeHTML(string(utf16.Decode(units[pos:next]))))
		}
	}
	return sb.String()
}
