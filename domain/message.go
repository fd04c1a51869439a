package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is the decrypted view returned to callers. The encrypted
// at-rest representation lives in the repository layer.
type Message struct {
	ID        uuid.UUID
	GroupID   uuid.UUID
	SenderID  string
	Content   string
	Corrupted bool // true when the stored record could not be decrypted
	CreatedAt time.Time
	Edited    bool
	EditedAt  *time.Time
}
