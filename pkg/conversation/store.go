package conversation

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	// ErrEmptyInput is returned when a turn begins with blank player text.
	ErrEmptyInput = errors.New("player text is empty")
	// ErrSessionNotFound is returned when a reply is committed to a session
	// that was never begun.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("conversation store is closed")
)

// Store manages session transcripts and the turn protocol.
// Implementations must be safe for concurrent use and must serialize turns
// that target the same session key: a BeginTurn for a key blocks until the
// previous turn on that key is committed or aborted.
//
// Callers follow the protocol once per inbound turn:
//
//  1. BeginTurn to obtain the log to submit for generation.
//  2. Submit the log to the chat-completion backend.
//  3. On success, CommitReply with the generated text.
//  4. On any failure after BeginTurn, AbortTurn before surfacing the error.
type Store interface {
	// BeginTurn ensures the session's transcript starts with a system entry
	// holding instruction (inserting it, or overwriting only its content
	// when the active persona changed), appends the player text as a user
	// entry, and returns a copy of the full transcript. An empty sessionKey
	// resolves to DefaultSessionKey. Text that is blank after trimming is
	// rejected with ErrEmptyInput and leaves the session untouched.
	BeginTurn(ctx context.Context, sessionKey, instruction, userText string) ([]Message, error)

	// CommitReply appends the generated reply as an assistant entry,
	// completing the turn opened by BeginTurn. Returns ErrSessionNotFound
	// if the session was never begun.
	CommitReply(ctx context.Context, sessionKey, assistantText string) error

	// AbortTurn removes the trailing user entry appended by BeginTurn,
	// restoring the transcript to its pre-turn state. Calling it when the
	// transcript does not end in a user entry, or for an unknown session,
	// is a no-op.
	AbortTurn(ctx context.Context, sessionKey string) error

	// History returns a copy of the session's transcript. Returns
	// ErrSessionNotFound for unknown sessions.
	History(ctx context.Context, sessionKey string) ([]Message, error)

	// Len reports the number of live sessions.
	Len() int

	// Close releases resources held by the store.
	Close() error
}

// Options bounds the memory store. Zero values disable the corresponding
// limit, matching a never-evicting table.
type Options struct {
	// MaxSessions caps the session table; when exceeded the least recently
	// used idle session is evicted.
	MaxSessions int

	// IdleTTL evicts sessions untouched for this long. Enforced by a
	// background sweep, see NewMemoryStore.
	IdleTTL time.Duration

	// SweepInterval is how often the idle sweep runs. Defaults to one
	// minute when IdleTTL is set.
	SweepInterval time.Duration

	// PendingTimeout recovers sessions whose turn was begun but never
	// committed or aborted (the caller's request was dropped mid-turn).
	// A later BeginTurn that finds such a turn older than this discards
	// the orphaned user entry and proceeds. Zero waits indefinitely.
	PendingTimeout time.Duration
}
