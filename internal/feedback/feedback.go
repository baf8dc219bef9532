// Package feedback records user votes on assistant messages, at most once
// per (message, user), and feeds an append-only event stream consumed by the
// analytics relay.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

type Vote string

const (
	VoteUp   Vote = "up"
	VoteDown Vote = "down"
)

// ErrInvalidVote rejects anything outside the up/down enum. Enforced here so
// no caller can slip an arbitrary string past the API layer.
var ErrInvalidVote = errors.New("feedback: vote must be \"up\" or \"down\"")

func (v Vote) Valid() bool { return v == VoteUp || v == VoteDown }

// StreamKey names the per-tenant feedback event stream.
func StreamKey(tenantKey string) string { return "feedback_stream:" + tenantKey }

func voteKey(tenantKey, messageID string) string {
	return fmt.Sprintf("feedback:%s:%s", tenantKey, messageID)
}

type Ledger struct {
	kv  store.Store
	now func() time.Time
}

func NewLedger(kv store.Store) *Ledger {
	return &Ledger{kv: kv, now: time.Now}
}

// SetClock replaces the time source. Test helper.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// RecordVote stores the vote unless the user already voted on this message.
// Returns true only for the first vote. The write is a single set-if-absent
// against the store; there is no read-then-write window for two concurrent
// votes to both land.
//
// A recorded vote also appends an analytics event. That append is
// fire-and-forget: if it fails the vote stays recorded and the failure is
// only logged.
func (l *Ledger) RecordVote(ctx context.Context, tenantKey, messageID, userID string, vote Vote) (bool, error) {
	if !vote.Valid() {
		return false, ErrInvalidVote
	}

	recorded, err := l.kv.HSetNX(ctx, voteKey(tenantKey, messageID), userID, string(vote))
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	if err := l.appendEvent(ctx, tenantKey, messageID, userID, vote); err != nil {
		log.Printf("feedback event append failed tenant=%s message=%s: %v", tenantKey, messageID, err)
	}
	return true, nil
}

// GetVote returns the stored vote for (message, user), or ErrNotFound from
// the store if the user has not voted.
func (l *Ledger) GetVote(ctx context.Context, tenantKey, messageID, userID string) (Vote, error) {
	raw, err := l.kv.HGet(ctx, voteKey(tenantKey, messageID), userID)
	if err != nil {
		return "", err
	}
	return Vote(raw), nil
}

func (l *Ledger) appendEvent(ctx context.Context, tenantKey, messageID, userID string, vote Vote) error {
	_, err := l.kv.XAdd(ctx, StreamKey(tenantKey), map[string]string{
		"tenant":     tenantKey,
		"message_id": messageID,
		"user_id":    userID,
		"vote":       string(vote),
		"timestamp":  l.now().UTC().Format(time.RFC3339),
	})
	return err
}
