package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/sdclabs/chatgate/internal/store/memstore"
)

func TestRecordVote_FirstVoteWins(t *testing.T) {
	kv := memstore.New()
	l := NewLedger(kv)
	ctx := context.Background()

	first, err := l.RecordVote(ctx, "acme", "m1", "u1", VoteUp)
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if !first {
		t.Fatalf("first vote should report recorded=true")
	}

	second, err := l.RecordVote(ctx, "acme", "m1", "u1", VoteDown)
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if second {
		t.Fatalf("second vote should report recorded=false")
	}

	// the stored vote must remain the original one
	v, err := l.GetVote(ctx, "acme", "m1", "u1")
	if err != nil {
		t.Fatalf("get vote: %v", err)
	}
	if v != VoteUp {
		t.Fatalf("stored vote: want up, got %q", v)
	}
}

func TestRecordVote_PerUserAndPerMessage(t *testing.T) {
	kv := memstore.New()
	l := NewLedger(kv)
	ctx := context.Background()

	if ok, _ := l.RecordVote(ctx, "acme", "m1", "u1", VoteUp); !ok {
		t.Fatalf("u1 on m1 should record")
	}
	if ok, _ := l.RecordVote(ctx, "acme", "m1", "u2", VoteDown); !ok {
		t.Fatalf("different user on same message should record")
	}
	if ok, _ := l.RecordVote(ctx, "acme", "m2", "u1", VoteDown); !ok {
		t.Fatalf("same user on different message should record")
	}
}

func TestRecordVote_InvalidVoteRejected(t *testing.T) {
	kv := memstore.New()
	l := NewLedger(kv)

	if _, err := l.RecordVote(context.Background(), "acme", "m1", "u1", Vote("maybe")); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("want ErrInvalidVote, got %v", err)
	}
}

func TestRecordVote_AppendsEventOnlyOnFirstVote(t *testing.T) {
	kv := memstore.New()
	l := NewLedger(kv)
	ctx := context.Background()

	if _, err := l.RecordVote(ctx, "acme", "m1", "u1", VoteUp); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := l.RecordVote(ctx, "acme", "m1", "u1", VoteDown); err != nil {
		t.Fatalf("duplicate vote: %v", err)
	}

	events := kv.Stream(StreamKey("acme"))
	if len(events) != 1 {
		t.Fatalf("want 1 stream event, got %d", len(events))
	}
	e := events[0].Values
	if e["message_id"] != "m1" || e["user_id"] != "u1" || e["vote"] != "up" {
		t.Fatalf("unexpected event payload: %v", e)
	}
	if e["timestamp"] == "" {
		t.Fatalf("event missing timestamp")
	}
}
