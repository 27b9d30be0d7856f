// Package conversation owns per-session dialogue transcripts for the
// narrative engine. A store hands out the exact message log to submit to the
// chat-completion backend, then records the generated reply or rolls the
// turn back, so a transcript never keeps a player line that produced no
// answer.
package conversation

// Role identifies the speaker of a transcript entry.
type Role string

const (
	// RoleSystem marks the persona instruction at the head of a transcript.
	RoleSystem Role = "system"
	// RoleUser marks a player turn.
	RoleUser Role = "user"
	// RoleAssistant marks a generated reply.
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultSessionKey is used when a request carries no session identifier.
const DefaultSessionKey = "default_session"
