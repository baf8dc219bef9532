// Package session owns per-(tenant, session) conversational state: the
// last-seen timestamp that decides whether a session is still alive, and the
// conversation memory that is dropped wholesale once it is not.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one conversation turn entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Manager tracks session liveness and stores conversation memory. Both the
// last-seen record and the memory list carry the tenant's session timeout as
// their TTL, so an idle session disappears from the store on its own; the
// stale-timestamp check below only matters when a request arrives before the
// expiry has fired.
type Manager struct {
	kv  store.Store
	now func() time.Time
}

func NewManager(kv store.Store) *Manager {
	return &Manager{kv: kv, now: time.Now}
}

// SetClock replaces the time source. Test helper.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func lastSeenKey(tenant, session string) string {
	return fmt.Sprintf("ls:%s:%s", tenant, session)
}

func memoryKey(tenant, session string) string {
	return fmt.Sprintf("chatmem:%s:%s", tenant, session)
}

// Resolve decides whether the session is fresh. An absent or stale last-seen
// record means any lingering memory is deleted and the session starts over.
// Call this exactly once per request, before any memory read; calling it
// twice would race the Touch that follows admission.
func (m *Manager) Resolve(ctx context.Context, tenantKey, sessionID string, timeout time.Duration) (isNew bool, err error) {
	raw, err := m.kv.Get(ctx, lastSeenKey(tenantKey, sessionID))
	if errors.Is(err, store.ErrNotFound) {
		// new or already expired out of the store: drop whatever stale
		// memory might still exist before the first turn is appended
		if err := m.DeleteMemory(ctx, tenantKey, sessionID); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	last, parseErr := time.Parse(time.RFC3339Nano, raw)
	if parseErr != nil || m.now().Sub(last) > timeout {
		if err := m.kv.Del(ctx, lastSeenKey(tenantKey, sessionID), memoryKey(tenantKey, sessionID)); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Touch refreshes the last-seen timestamp. Runs unconditionally after every
// admitted request.
func (m *Manager) Touch(ctx context.Context, tenantKey, sessionID string, timeout time.Duration) error {
	return m.kv.Set(ctx, lastSeenKey(tenantKey, sessionID),
		m.now().UTC().Format(time.RFC3339Nano), timeout)
}

// LoadMemory returns the stored conversation in order. Absent sessions yield
// an empty slice; entries that fail to decode are skipped rather than failing
// the whole load.
func (m *Manager) LoadMemory(ctx context.Context, tenantKey, sessionID string) ([]Message, error) {
	raw, err := m.kv.LRange(ctx, memoryKey(tenantKey, sessionID), 0, -1)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, entry := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// AppendMemory extends the conversation and resets its TTL to the session
// timeout. Last writer wins under concurrent saves for the same session; the
// surrounding protocol assumes one in-flight turn per session.
func (m *Manager) AppendMemory(ctx context.Context, tenantKey, sessionID string, timeout time.Duration, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	entries := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if !msg.Role.Valid() {
			return fmt.Errorf("session: invalid role %q", msg.Role)
		}
		buf, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		entries = append(entries, string(buf))
	}
	k := memoryKey(tenantKey, sessionID)
	if err := m.kv.RPush(ctx, k, entries...); err != nil {
		return err
	}
	return m.kv.Expire(ctx, k, timeout)
}

// DeleteMemory removes the conversation. Deleting an absent session is a
// no-op.
func (m *Manager) DeleteMemory(ctx context.Context, tenantKey, sessionID string) error {
	return m.kv.Del(ctx, memoryKey(tenantKey, sessionID))
}
