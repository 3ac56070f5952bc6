// Package session tracks every authenticated connection. The Registry
// is a plain structure owned by the hub goroutine; single-writer
// discipline comes from that ownership, so there is no locking here.
package session

import (
	"context"
	"errors"

	"github.com/arena-gg/arena-backend/internal/protocol"
)

var ErrUnknownSession = errors.New("unknown session")
var ErrInvalidTransition = errors.New("invalid status transition")

type Status string

const (
	StatusOnline  Status = "online"
	StatusQueued  Status = "queued"
	StatusInvited Status = "invited"
	StatusInMatch Status = "in_match"
)

// PlayerSession is one authenticated connection. Outbox is where the
// hub and match actors push frames; Cancel tears the connection's
// read/write loops down (used when a newer connection evicts this one).
type PlayerSession struct {
	UserID         string
	Outbox         chan protocol.ServerMessage
	Cancel         context.CancelFunc
	Status         Status
	CurrentMatchID string
}

type Registry struct {
	sessions map[string]*PlayerSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*PlayerSession)}
}

// Register adds a session for userID. Last connection wins: an existing
// live session is returned as evicted so the caller can cancel it.
func (r *Registry) Register(userID string, outbox chan protocol.ServerMessage, cancel context.CancelFunc) (*PlayerSession, *PlayerSession) {
	evicted := r.sessions[userID]
	s := &PlayerSession{
		UserID: userID,
		Outbox: outbox,
		Cancel: cancel,
		Status: StatusOnline,
	}
	r.sessions[userID] = s
	return s, evicted
}

func (r *Registry) Get(userID string) (*PlayerSession, bool) {
	s, ok := r.sessions[userID]
	return s, ok
}

// SetStatus enforces the monotonic lifecycle:
// online -> queued/invited -> in_match -> online. Setting the current
// status again is a no-op, not an error.
func (r *Registry) SetStatus(userID string, next Status) error {
	s, ok := r.sessions[userID]
	if !ok {
		return ErrUnknownSession
	}
	if s.Status == next {
		return nil
	}
	if !allowed(s.Status, next) {
		return ErrInvalidTransition
	}
	s.Status = next
	if next != StatusInMatch {
		s.CurrentMatchID = ""
	}
	return nil
}

func allowed(from, to Status) bool {
	switch from {
	case StatusOnline:
		return to == StatusQueued || to == StatusInvited || to == StatusInMatch
	case StatusQueued, StatusInvited:
		return to == StatusOnline || to == StatusInMatch
	case StatusInMatch:
		return to == StatusOnline
	}
	return false
}

// Unregister removes the session if present and returns it. Idempotent.
func (r *Registry) Unregister(userID string) *PlayerSession {
	s := r.sessions[userID]
	delete(r.sessions, userID)
	return s
}

func (r *Registry) Len() int { return len(r.sessions) }

// Each visits every live session; mutation during the visit is fine
// since the caller is the owning goroutine.
func (r *Registry) Each(fn func(*PlayerSession)) {
	for _, s := range r.sessions {
		fn(s)
	}
}
