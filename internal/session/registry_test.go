package session

import (
	"testing"

	"github.com/arena-gg/arena-backend/internal/protocol"
)

func TestRegisterLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	out1 := make(chan protocol.ServerMessage, 1)
	out2 := make(chan protocol.ServerMessage, 1)

	first, evicted := r.Register("u1", out1, func() {})
	if evicted != nil {
		t.Fatalf("first register evicted %v", evicted)
	}
	second, evicted := r.Register("u1", out2, func() {})
	if evicted != first {
		t.Fatalf("expected first session to be evicted")
	}
	got, _ := r.Get("u1")
	if got != second || got.Outbox != out2 {
		t.Fatalf("registry does not hold the newest connection")
	}
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"online to queued", StatusOnline, StatusQueued, false},
		{"online to invited", StatusOnline, StatusInvited, false},
		{"online to in_match", StatusOnline, StatusInMatch, false},
		{"queued to online", StatusQueued, StatusOnline, false},
		{"queued to in_match", StatusQueued, StatusInMatch, false},
		{"invited to in_match", StatusInvited, StatusInMatch, false},
		{"in_match to online", StatusInMatch, StatusOnline, false},
		{"in_match to queued", StatusInMatch, StatusQueued, true},
		{"queued to invited", StatusQueued, StatusInvited, true},
		{"same status no-op", StatusQueued, StatusQueued, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			s, _ := r.Register("u1", make(chan protocol.ServerMessage, 1), func() {})
			s.Status = tc.from
			err := r.SetStatus("u1", tc.to)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !tc.wantErr && s.Status != tc.to {
				t.Fatalf("status = %v, want %v", s.Status, tc.to)
			}
		})
	}
}

func TestSetStatusUnknownUser(t *testing.T) {
	r := NewRegistry()
	if err := r.SetStatus("ghost", StatusQueued); err != ErrUnknownSession {
		t.Fatalf("err = %v, want ErrUnknownSession", err)
	}
}

func TestLeavingMatchClearsCurrentMatchID(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Register("u1", make(chan protocol.ServerMessage, 1), func() {})
	s.Status = StatusInMatch
	s.CurrentMatchID = "m1"

	if err := r.SetStatus("u1", StatusOnline); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.CurrentMatchID != "" {
		t.Fatalf("CurrentMatchID = %q, want cleared", s.CurrentMatchID)
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", make(chan protocol.ServerMessage, 1), func() {})
	if s := r.Unregister("u1"); s == nil {
		t.Fatalf("expected removed session")
	}
	if s := r.Unregister("u1"); s != nil {
		t.Fatalf("second unregister returned %v", s)
	}
}
