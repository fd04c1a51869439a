package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserBan is the user-side mirror of a group BanRecord.
type UserBan struct {
	GroupID  uuid.UUID
	BannedAt time.Time
}

// User carries the denormalized view of a user's group relationships.
// Identity and credentials are verified upstream; this record only
// exists to answer "which groups am I in" without scanning every group.
type User struct {
	ID     string
	Groups []uuid.UUID
	Bans   []UserBan

	Version uint64
}

func (u *User) InGroup(groupID uuid.UUID) bool {
	for _, g := range u.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// AddGroup is idempotent; re-adding an already joined group is a no-op.
func (u *User) AddGroup(groupID uuid.UUID) {
	if u.InGroup(groupID) {
		return
	}
	u.Groups = append(u.Groups, groupID)
}

func (u *User) RemoveGroup(groupID uuid.UUID) {
	for i, g := range u.Groups {
		if g == groupID {
			u.Groups = append(u.Groups[:i], u.Groups[i+1:]...)
			return
		}
	}
}

// AddBan records the ban on the user side. Bans are permanent: no
// operation removes a UserBan.
func (u *User) AddBan(groupID uuid.UUID, at time.Time) {
	u.Bans = append(u.Bans, UserBan{GroupID: groupID, BannedAt: at})
}
