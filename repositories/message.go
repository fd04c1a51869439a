//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"group-chat/errors"
)

type IMessageRepository interface {
	Store(message StoredMessage) error
	LoadByID(id uuid.UUID) (StoredMessage, error)
	Update(message StoredMessage) error
	Page(groupID uuid.UUID, limit int, before, after *time.Time) ([]StoredMessage, error)
	Recent(groupID uuid.UUID, n int) ([]StoredMessage, error)
	DeleteAllInGroup(groupID uuid.UUID) error
}

// StoredMessage is the encrypted at-rest representation of a message.
// Content only lives here as a ciphertext/iv pair; soft deletion keeps
// the pair in place and only flips the flags.
type StoredMessage struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	SenderID   string
	Ciphertext []byte
	IV         []byte
	CreatedAt  time.Time
	Edited     bool
	EditedAt   *time.Time
	Deleted    bool
	DeletedAt  *time.Time

	Version uint64
}

// MessageRepository persists messages in BadgerDB.
// The primary key is "msg:{group}:{timestamp_padded}:{uuid}" so that:
//  1. A prefix scan per group yields chronological order for free
//     (19-digit zero padding keeps the lexicographical order correct).
//  2. The UUID suffix disambiguates two messages landing on the same
//     nanosecond.
//
// A secondary "msgid:{uuid}" entry points back at the primary key so
// edit and delete can address a message without knowing its timestamp.
type MessageRepository struct {
	db *badger.DB
}

func NewMessageRepository(db *badger.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func messageKey(m StoredMessage) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.GroupID, m.CreatedAt.UnixNano(), m.ID))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func groupPrefix(groupID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", groupID))
}

func (r *MessageRepository) Store(message StoredMessage) error {
	message.Version = 1
	value, err := json.Marshal(&message)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(message), value); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), messageKey(message))
	})
}

func (r *MessageRepository) LoadByID(id uuid.UUID) (StoredMessage, error) {
	var message StoredMessage
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(messageIndexKey(id))
		if err != nil {
			return err
		}
		var primaryKey []byte
		if err := item.Value(func(value []byte) error {
			primaryKey = append([]byte(nil), value...)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(primaryKey)
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &message)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return StoredMessage{}, fmt.Errorf("%w: %s", errors.ErrMessageNotFound, id)
	}
	if err != nil {
		return StoredMessage{}, err
	}
	return message, nil
}

// Update rewrites an existing record in place. GroupID, CreatedAt and ID
// never change, so the primary key stays stable across edits and soft
// deletes.
func (r *MessageRepository) Update(message StoredMessage) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		stored, err := storedVersion(txn, messageKey(message))
		if err != nil {
			return err
		}
		if stored == 0 {
			return fmt.Errorf("%w: %s", errors.ErrMessageNotFound, message.ID)
		}
		if stored != message.Version {
			return fmt.Errorf("%w: message %s has version %d, expected %d",
				errors.ErrConflict, message.ID, stored, message.Version)
		}
		next := message
		next.Version = message.Version + 1
		value, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(message), value)
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: message %s", errors.ErrConflict, message.ID)
	}
	return err
}

// Page fetches up to limit non-deleted messages of a group, newest
// first. A before bound restricts to strictly older messages by seeking
// straight to the bound; an after bound cuts the scan short once
// timestamps fall to or below it. before wins when both are set.
func (r *MessageRepository) Page(groupID uuid.UUID, limit int, before, after *time.Time) ([]StoredMessage, error) {
	if before != nil {
		after = nil
	}
	var messages []StoredMessage
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := groupPrefix(groupID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(seekKey(prefix, before)); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var message StoredMessage
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			}); err != nil {
				return err
			}
			if after != nil && !message.CreatedAt.After(*after) {
				// Reverse scan: everything from here on is older still.
				break
			}
			if message.Deleted {
				continue
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Recent returns the n most recent non-deleted messages of a group,
// newest first. This is the bounded window behind search.
func (r *MessageRepository) Recent(groupID uuid.UUID, n int) ([]StoredMessage, error) {
	return r.Page(groupID, n, nil, nil)
}

// DeleteAllInGroup removes every message record and index entry of a
// group, as part of the DeleteGroup cascade. A write batch keeps large
// cascades out of a single oversized transaction.
func (r *MessageRepository) DeleteAllInGroup(groupID uuid.UUID) error {
	var primaryKeys [][]byte
	var ids []uuid.UUID
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := groupPrefix(groupID)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			primaryKeys = append(primaryKeys, item.KeyCopy(nil))
			var message StoredMessage
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &message)
			}); err != nil {
				return err
			}
			ids = append(ids, message.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := r.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range primaryKeys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if err := wb.Delete(messageIndexKey(id)); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// seekKey positions a reverse iterator. Without a bound it starts past
// the newest possible timestamp; with a before bound it starts just
// under the bound, so messages at exactly the bound are excluded.
func seekKey(prefix []byte, before *time.Time) []byte {
	if before == nil {
		return append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
	}
	return append(append([]byte(nil), prefix...), []byte(fmt.Sprintf("%019d", before.UnixNano()))...)
}
