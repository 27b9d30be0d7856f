package conversation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single mutex guards the session
// table; every store operation is a short in-memory mutation, so coarse
// locking is the throughput ceiling here and is acceptable at conversation
// scale. Turn serialization per session rides on the pending flag, not the
// mutex: the lock is never held across a generation call.
type MemoryStore struct {
	opts Options

	mu     sync.Mutex
	table  map[string]*session
	closed bool

	stop chan struct{}
	done chan struct{}
}

type session struct {
	messages  []Message
	pending   bool
	pendingAt time.Time
	lastSeen  time.Time

	// turnDone is closed and replaced when the pending turn resolves,
	// waking callers blocked in BeginTurn for the same key.
	turnDone chan struct{}
}

// NewMemoryStore creates a memory store. When opts.IdleTTL is set, a
// background sweep evicts sessions idle longer than the TTL until Close.
func NewMemoryStore(opts Options) *MemoryStore {
	s := &MemoryStore{
		opts:  opts,
		table: make(map[string]*session),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	if opts.IdleTTL > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go s.sweepLoop(interval)
	} else {
		close(s.done)
	}

	return s
}

// BeginTurn implements Store.
func (s *MemoryStore) BeginTurn(ctx context.Context, sessionKey, instruction, userText string) ([]Message, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil, ErrEmptyInput
	}
	key := normalizeKey(sessionKey)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrStoreClosed
		}

		sess, ok := s.table[key]
		if !ok {
			s.evictLocked()
			sess = &session{turnDone: make(chan struct{})}
			s.table[key] = sess
		}

		stale := sess.pending && s.opts.PendingTimeout > 0 &&
			time.Since(sess.pendingAt) > s.opts.PendingTimeout

		if !sess.pending || stale {
			if stale {
				// The previous caller vanished mid-turn; its player line
				// never got a reply, so it is discarded.
				sess.dropTrailingUser()
			}
			sess.ensureSystem(instruction)
			sess.messages = append(sess.messages, Message{Role: RoleUser, Content: text})
			now := time.Now()
			sess.pending = true
			sess.pendingAt = now
			sess.lastSeen = now
			log := copyMessages(sess.messages)
			s.mu.Unlock()
			return log, nil
		}

		wait := sess.turnDone
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// CommitReply implements Store.
func (s *MemoryStore) CommitReply(ctx context.Context, sessionKey, assistantText string) error {
	key := normalizeKey(sessionKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	sess, ok := s.table[key]
	if !ok {
		return ErrSessionNotFound
	}

	sess.messages = append(sess.messages, Message{Role: RoleAssistant, Content: assistantText})
	sess.lastSeen = time.Now()
	sess.resolve()
	return nil
}

// AbortTurn implements Store.
func (s *MemoryStore) AbortTurn(ctx context.Context, sessionKey string) error {
	key := normalizeKey(sessionKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	sess, ok := s.table[key]
	if !ok {
		return nil
	}

	sess.dropTrailingUser()
	sess.resolve()
	return nil
}

// History implements Store.
func (s *MemoryStore) History(ctx context.Context, sessionKey string) ([]Message, error) {
	key := normalizeKey(sessionKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	sess, ok := s.table[key]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return copyMessages(sess.messages), nil
}

// Len implements Store.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.table)
}

// Close implements Store. Callers blocked in BeginTurn are woken and
// receive ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sess := range s.table {
		if sess.pending {
			sess.resolve()
		}
	}
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

// sweep drops sessions idle longer than IdleTTL. Sessions with a turn in
// flight are skipped.
func (s *MemoryStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.opts.IdleTTL <= 0 {
		return 0
	}

	removed := 0
	for key, sess := range s.table {
		if sess.pending {
			continue
		}
		if now.Sub(sess.lastSeen) > s.opts.IdleTTL {
			delete(s.table, key)
			removed++
		}
	}
	return removed
}

// evictLocked makes room for one more session when MaxSessions is set,
// removing the least recently used idle session. Caller holds s.mu.
func (s *MemoryStore) evictLocked() {
	if s.opts.MaxSessions <= 0 || len(s.table) < s.opts.MaxSessions {
		return
	}

	var victim string
	var oldest time.Time
	for key, sess := range s.table {
		if sess.pending {
			continue
		}
		if victim == "" || sess.lastSeen.Before(oldest) {
			victim = key
			oldest = sess.lastSeen
		}
	}
	if victim != "" {
		delete(s.table, victim)
	}
}

// ensureSystem keeps the head of the transcript in sync with the active
// persona: inserted when absent, content overwritten when the persona
// changed, prior player/reply entries untouched.
func (sess *session) ensureSystem(instruction string) {
	if len(sess.messages) == 0 || sess.messages[0].Role != RoleSystem {
		sess.messages = append([]Message{{Role: RoleSystem, Content: instruction}}, sess.messages...)
		return
	}
	if sess.messages[0].Content != instruction {
		sess.messages[0].Content = instruction
	}
}

// dropTrailingUser removes the last entry only if it is a user entry, so
// repeated aborts and aborts after a committed reply are harmless.
func (sess *session) dropTrailingUser() {
	if n := len(sess.messages); n > 0 && sess.messages[n-1].Role == RoleUser {
		sess.messages = sess.messages[:n-1]
	}
}

// resolve finishes the pending turn and wakes waiters.
func (sess *session) resolve() {
	if !sess.pending {
		return
	}
	sess.pending = false
	close(sess.turnDone)
	sess.turnDone = make(chan struct{})
}

func normalizeKey(key string) string {
	if key == "" {
		return DefaultSessionKey
	}
	return key
}

func copyMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
