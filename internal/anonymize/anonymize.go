// Package anonymize implements reversible speaker anonymization for
// conversation transcripts. Real Telegram user IDs are replaced with stable
// pseudonyms before text leaves the system, and summaries referencing those
// pseudonyms can be mapped back afterwards.
package anonymize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/knowbase/knowbot/internal/database"
)

// SelfPseudonym is the fixed pseudonym for the bot's own messages.
const SelfPseudonym = "bot"

// Mapping is a bidirectional speaker map built for one extraction run.
// Pseudonyms are assigned in first-seen order, so a fixed input order always
// produces the same mapping.
type Mapping struct {
	byReal      map[string]string
	byPseudonym map[string]string
	nextIndex   int
}

// BuildMapping scans the messages in order and assigns each distinct sender a
// pseudonym (user_1, user_2, ...). The bot's own ID maps to the fixed
// pseudonym "bot" without consuming a number. Numeric mention tokens inside
// message text are mapped too, continuing the sequence.
func BuildMapping(messages []database.Message, selfID int64) *Mapping {
	m := &Mapping{
		byReal:      make(map[string]string),
		byPseudonym: make(map[string]string),
		nextIndex:   1,
	}
	m.byReal[strconv.FormatInt(selfID, 10)] = SelfPseudonym
	m.byPseudonym[SelfPseudonym] = strconv.FormatInt(selfID, 10)

	for _, msg := range messages {
		m.assign(strconv.FormatInt(msg.UserID, 10))
		for _, tok := range strings.Fields(msg.Content) {
			if id, ok := mentionID(tok); ok {
				m.assign(id)
			}
		}
	}
	return m
}

func (m *Mapping) assign(realID string) string {
	if p, ok := m.byReal[realID]; ok {
		return p
	}
	p := "user_" + strconv.Itoa(m.nextIndex)
	m.nextIndex++
	m.byReal[realID] = p
	m.byPseudonym[p] = realID
	return p
}

// Pseudonym returns the pseudonym assigned to a user ID, or empty if the
// user never appeared in the mapped messages.
func (m *Mapping) Pseudonym(userID int64) string {
	return m.byReal[strconv.FormatInt(userID, 10)]
}

// Deidentify replaces whitespace-delimited @<digits> mention tokens with
// their @<pseudonym> form. Unmapped tokens pass through unchanged.
func (m *Mapping) Deidentify(text string) string {
	return mapTokens(text, func(tok string) string {
		id, ok := mentionID(tok)
		if !ok {
			return tok
		}
		p, ok := m.byReal[id]
		if !ok {
			return tok
		}
		return "@" + p
	})
}

// FilterReferenced returns the subset of the speaker map (pseudonym to real
// ID) whose pseudonyms are actually mentioned in any of the given texts.
func (m *Mapping) FilterReferenced(texts ...string) map[string]string {
	referenced := make(map[string]string)
	for _, text := range texts {
		for _, tok := range strings.Fields(text) {
			p, ok := mentionPseudonym(tok)
			if !ok {
				continue
			}
			if real, ok := m.byPseudonym[p]; ok {
				referenced[p] = real
			}
		}
	}
	return referenced
}

// Reidentify replaces whitespace-delimited @<pseudonym> tokens with their
// real @<id> form using the given speaker map (pseudonym to real ID).
// Pseudonyms missing from the map pass through unchanged.
func Reidentify(text string, speakers map[string]string) string {
	if len(speakers) == 0 {
		return text
	}
	return mapTokens(text, func(tok string) string {
		p, ok := mentionPseudonym(tok)
		if !ok {
			return tok
		}
		real, ok := speakers[p]
		if !ok {
			return tok
		}
		return "@" + real
	})
}

// mentionID reports whether tok is a real mention token (@ followed by
// digits only) and returns the numeric ID.
func mentionID(tok string) (string, bool) {
	if len(tok) < 2 || tok[0] != '@' {
		return "", false
	}
	id := tok[1:]
	for _, r := range id {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

// mentionPseudonym reports whether tok is a pseudonym mention token
// (@user_<digits> or @bot) and returns the pseudonym.
func mentionPseudonym(tok string) (string, bool) {
	if len(tok) < 2 || tok[0] != '@' {
		return "", false
	}
	p := tok[1:]
	if p == SelfPseudonym {
		return p, true
	}
	rest, ok := strings.CutPrefix(p, "user_")
	if !ok || rest == "" {
		return "", false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return p, true
}

// mapTokens applies f to every whitespace-delimited token, preserving the
// original separators.
func mapTokens(text string, f func(string) string) string {
	var b strings.Builder
	b.Grow(len(text))
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				b.WriteString(f(text[start:i]))
				start = -1
			}
			b.WriteRune(r)
		} else if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		b.WriteString(f(text[start:]))
	}
	return b.String()
}
