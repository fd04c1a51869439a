// Package event defines the domain events published on the fan-out bus.
// Events are best-effort notifications for live viewers; they are never
// persisted and never drive domain state.
package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeNewMessage        Type = "NewMessage"
	TypeMessageEdited     Type = "MessageEdited"
	TypeMessageDeleted    Type = "MessageDeleted"
	TypeMembershipChanged Type = "MembershipChanged"
)

// DomainEvent is anything the bus can fan out, scoped to a group channel.
type DomainEvent interface {
	GroupID() uuid.UUID
	Type() Type
}

// NewMessage announces a freshly sent message. Content is the plaintext
// a delivery layer needs to render; encryption is an at-rest property.
type NewMessage struct {
	MessageID uuid.UUID
	Group     uuid.UUID
	SenderID  string
	Content   string
	At        time.Time
}

func (e NewMessage) GroupID() uuid.UUID { return e.Group }
func (e NewMessage) Type() Type         { return TypeNewMessage }

type MessageEdited struct {
	MessageID uuid.UUID
	Group     uuid.UUID
	SenderID  string
	Content   string
	EditedAt  time.Time
}

func (e MessageEdited) GroupID() uuid.UUID { return e.Group }
func (e MessageEdited) Type() Type         { return TypeMessageEdited }

type MessageDeleted struct {
	MessageID uuid.UUID
	Group     uuid.UUID
	DeletedBy string
	DeletedAt time.Time
}

func (e MessageDeleted) GroupID() uuid.UUID { return e.Group }
func (e MessageDeleted) Type() Type         { return TypeMessageDeleted }

// MembershipChange names what happened to the user's relationship with
// the group.
type MembershipChange string

const (
	ChangeJoined   MembershipChange = "joined"
	ChangeLeft     MembershipChange = "left"
	ChangeBanned   MembershipChange = "banned"
	ChangeApproved MembershipChange = "approved"
	ChangeOwner    MembershipChange = "ownership"
	ChangeDeleted  MembershipChange = "deleted"
)

type MembershipChanged struct {
	Group  uuid.UUID
	UserID string
	Change MembershipChange
	At     time.Time
}

func (e MembershipChanged) GroupID() uuid.UUID { return e.Group }
func (e MembershipChanged) Type() Type         { return TypeMembershipChanged }
