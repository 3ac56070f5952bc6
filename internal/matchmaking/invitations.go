package matchmaking

import (
	"errors"
	"time"

	"github.com/arena-gg/arena-backend/internal/game"
	"github.com/google/uuid"
)

var ErrInvitationExists = errors.New("pending invitation already exists")
var ErrUnknownInvitation = errors.New("unknown invitation")
var ErrNotRecipient = errors.New("not the invitation recipient")
var ErrInvitationExpired = errors.New("invitation expired")

// InvitationTTL is how long a pending invitation survives unanswered.
const InvitationTTL = 30 * time.Second

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

type Invitation struct {
	ID         string
	FromUserID string
	ToUserID   string
	GameType   game.Type
	CreatedAt  time.Time
	Status     InvitationStatus
}

type Invitations struct {
	byID map[string]*Invitation
}

func NewInvitations() *Invitations {
	return &Invitations{byID: make(map[string]*Invitation)}
}

// Create registers a pending invitation. At most one pending invitation
// may exist per ordered (from, to) pair.
func (inv *Invitations) Create(from, to string, gt game.Type, now time.Time) (*Invitation, error) {
	for _, i := range inv.byID {
		if i.Status == InvitationPending && i.FromUserID == from && i.ToUserID == to {
			return nil, ErrInvitationExists
		}
	}
	i := &Invitation{
		ID:         uuid.NewString(),
		FromUserID: from,
		ToUserID:   to,
		GameType:   gt,
		CreatedAt:  now,
		Status:     InvitationPending,
	}
	inv.byID[i.ID] = i
	return i, nil
}

// Respond resolves a pending invitation. Only the recipient may answer,
// and not after the TTL has lapsed.
func (inv *Invitations) Respond(id, userID string, accept bool, now time.Time) (*Invitation, error) {
	i, ok := inv.byID[id]
	if !ok || i.Status != InvitationPending {
		return nil, ErrUnknownInvitation
	}
	if i.ToUserID != userID {
		return nil, ErrNotRecipient
	}
	if now.Sub(i.CreatedAt) > InvitationTTL {
		i.Status = InvitationExpired
		return nil, ErrInvitationExpired
	}
	if accept {
		i.Status = InvitationAccepted
	} else {
		i.Status = InvitationDeclined
	}
	delete(inv.byID, id)
	return i, nil
}

// ExpireStale flips pending invitations past their TTL to expired and
// returns them so the hub can notify the inviters.
func (inv *Invitations) ExpireStale(now time.Time) []*Invitation {
	var expired []*Invitation
	for id, i := range inv.byID {
		if i.Status == InvitationPending && now.Sub(i.CreatedAt) > InvitationTTL {
			i.Status = InvitationExpired
			delete(inv.byID, id)
			expired = append(expired, i)
		}
	}
	return expired
}

// RemoveUser cancels every pending invitation the user is a party to
// (disconnect cleanup) and returns the ones they sent, so the other side
// can be told.
func (inv *Invitations) RemoveUser(userID string) []*Invitation {
	var cancelled []*Invitation
	for id, i := range inv.byID {
		if i.FromUserID == userID || i.ToUserID == userID {
			i.Status = InvitationExpired
			delete(inv.byID, id)
			cancelled = append(cancelled, i)
		}
	}
	return cancelled
}
