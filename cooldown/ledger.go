// Package cooldown tracks when a user last left a private group and
// enforces the minimum wait before a new join request may be created.
package cooldown

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// ILedger is the contract consumed by the membership engine.
type ILedger interface {
	CanRejoin(userID string, groupID uuid.UUID) (bool, error)
	RecordLeave(userID string, groupID uuid.UUID, at time.Time) error
}

// Ledger holds at most one leftAt entry per (user, group); re-leaving
// overwrites the previous entry instead of appending history.
type Ledger struct {
	db       *badger.DB
	cooldown time.Duration
	now      func() time.Time
}

// NewLedger builds a ledger enforcing the given cooldown. The clock is
// injected so time-window tests can simulate elapse.
func NewLedger(db *badger.DB, cooldown time.Duration, now func() time.Time) *Ledger {
	return &Ledger{db: db, cooldown: cooldown, now: now}
}

func leaveKey(userID string, groupID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("cooldown:%s:%s", userID, groupID))
}

// RecordLeave upserts the single most-recent leftAt for the pair.
func (l *Ledger) RecordLeave(userID string, groupID uuid.UUID, at time.Time) error {
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, uint64(at.UnixNano()))
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(leaveKey(userID, groupID), value)
	})
}

// CanRejoin reports whether no leftAt record exists for the pair, or the
// cooldown has fully elapsed since the recorded leave.
func (l *Ledger) CanRejoin(userID string, groupID uuid.UUID) (bool, error) {
	var leftAt *time.Time
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(leaveKey(userID, groupID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			at := time.Unix(0, int64(binary.BigEndian.Uint64(value))).UTC()
			leftAt = &at
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	if leftAt == nil {
		return true, nil
	}
	return l.now().Sub(*leftAt) >= l.cooldown, nil
}
