// Package domain contains the core aggregates of the group messaging
// system: Group, User and Message. The Group aggregate is the
// authoritative source of membership truth; the User record only carries
// a denormalized index of joined groups.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type GroupType string

const (
	GroupPublic  GroupType = "public"
	GroupPrivate GroupType = "private"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestDeclined RequestStatus = "declined"
)

// JoinRequest is a pending ask to join a private group. Its status
// transitions pending -> approved|declined exactly once.
type JoinRequest struct {
	ID          uuid.UUID
	UserID      string
	RequestedAt time.Time
	Status      RequestStatus
}

// BanRecord marks a user as permanently excluded from a group.
type BanRecord struct {
	UserID   string
	BannedAt time.Time
	BannedBy string
}

// Group is the owning aggregate for membership. The owner is always a
// member; a user never appears in Members and BannedUsers at once.
type Group struct {
	ID           uuid.UUID
	Name         string
	Type         GroupType
	OwnerID      string
	Members      []string
	MaxMembers   *int // nil means unlimited
	JoinRequests []JoinRequest
	BannedUsers  []BanRecord
	CreatedAt    time.Time

	// Version backs optimistic saves in the repository layer.
	Version uint64
}

func NewGroup(name string, groupType GroupType, ownerID string, maxMembers *int, at time.Time) *Group {
	return &Group{
		ID:         uuid.New(),
		Name:       name,
		Type:       groupType,
		OwnerID:    ownerID,
		Members:    []string{ownerID},
		MaxMembers: maxMembers,
		CreatedAt:  at,
	}
}

func (g *Group) IsMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (g *Group) IsBanned(userID string) bool {
	for _, b := range g.BannedUsers {
		if b.UserID == userID {
			return true
		}
	}
	return false
}

// IsFull reports whether the group is at capacity. Unlimited when
// MaxMembers is nil.
func (g *Group) IsFull() bool {
	return g.MaxMembers != nil && len(g.Members) >= *g.MaxMembers
}

func (g *Group) HasPendingRequest(userID string) bool {
	for _, r := range g.JoinRequests {
		if r.UserID == userID && r.Status == RequestPending {
			return true
		}
	}
	return false
}

// RequestByID returns a pointer into JoinRequests so status transitions
// mutate the aggregate in place. Nil when absent.
func (g *Group) RequestByID(requestID uuid.UUID) *JoinRequest {
	for i := range g.JoinRequests {
		if g.JoinRequests[i].ID == requestID {
			return &g.JoinRequests[i]
		}
	}
	return nil
}

// AppendJoinRequest records a new pending request. Callers are expected
// to have checked for bans, membership and an existing pending request.
func (g *Group) AppendJoinRequest(userID string, at time.Time) JoinRequest {
	req := JoinRequest{
		ID:          uuid.New(),
		UserID:      userID,
		RequestedAt: at,
		Status:      RequestPending,
	}
	g.JoinRequests = append(g.JoinRequests, req)
	return req
}

func (g *Group) AddMember(userID string) {
	g.Members = append(g.Members, userID)
}

func (g *Group) RemoveMember(userID string) {
	for i, m := range g.Members {
		if m == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

// Ban removes the target from the member list and records the ban.
// Bans are permanent: there is no operation that clears a BanRecord.
func (g *Group) Ban(targetID, bannedBy string, at time.Time) {
	g.RemoveMember(targetID)
	g.BannedUsers = append(g.BannedUsers, BanRecord{
		UserID:   targetID,
		BannedAt: at,
		BannedBy: bannedBy,
	})
}

// TransferTo makes newOwnerID the owner. The previous owner stays a
// regular member.
func (g *Group) TransferTo(newOwnerID string) {
	g.OwnerID = newOwnerID
}
