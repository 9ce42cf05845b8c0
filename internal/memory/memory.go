// Package memory implements the bounded conversational memory for the hibiki
// bot. Each Discord channel gets its own ordered log of recent turns; after
// every insertion the log is trimmed by three eviction passes (age, count,
// token budget) so the context sent to the LLM never grows without bound.
// Long-term context is not stored here; it is fetched live from the platform
// at assembly time (see Assembler).
package memory

import "time"

// Role identifies the author of a conversation turn. The whole system uses
// exactly two roles; every boundary vocabulary (caller labels, the platform's
// bot-author flag) is mapped into this enum once, at the edge.
type Role string

const (
	// RoleUser is a turn written by a human.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by the bot.
	RoleAssistant Role = "assistant"
)

// RoleFromLabel maps a caller-supplied role label to the canonical Role.
// "assistant" (and the Gemini-style "model") map to RoleAssistant; everything
// else is treated as user input.
func RoleFromLabel(label string) Role {
	switch label {
	case "assistant", "model":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// RoleFromAuthor maps the platform's is-this-the-bot flag to the canonical
// Role. Any bot-authored message counts as assistant output.
func RoleFromAuthor(isBot bool) Role {
	if isBot {
		return RoleAssistant
	}
	return RoleUser
}

// Turn is the read-only projection of a stored message: what the generation
// backend sees. Oldest-first ordering is preserved everywhere Turns appear.
type Turn struct {
	// Role is the author of the turn.
	Role Role
	// Content is the text of the turn.
	Content string
}

// Message is a single stored conversation record. Immutable once appended.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// Timestamp is when the message was appended to the store.
	Timestamp time.Time
}
