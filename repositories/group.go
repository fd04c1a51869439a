//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"group-chat/domain"
	"group-chat/errors"
)

type IGroupRepository interface {
	Load(id uuid.UUID) (*domain.Group, error)
	Save(group *domain.Group) error
	Delete(id uuid.UUID) error
}

// GroupRepository persists Group aggregates in BadgerDB as versioned
// JSON records under "group:{id}". Saves are optimistic: a write whose
// in-memory version no longer matches the stored record fails Conflict.
type GroupRepository struct {
	db *badger.DB
}

func NewGroupRepository(db *badger.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func groupKey(id uuid.UUID) []byte {
	return []byte("group:" + id.String())
}

func (r *GroupRepository) Load(id uuid.UUID) (*domain.Group, error) {
	var group domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(groupKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &group)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", errors.ErrGroupNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// Save writes the aggregate and bumps its version. The version check and
// the write share one transaction, so concurrent savers of the same
// group cannot both win.
func (r *GroupRepository) Save(group *domain.Group) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		stored, err := storedVersion(txn, groupKey(group.ID))
		if err != nil {
			return err
		}
		if stored != group.Version {
			return fmt.Errorf("%w: group %s has version %d, expected %d",
				errors.ErrConflict, group.ID, stored, group.Version)
		}
		next := *group
		next.Version = group.Version + 1
		value, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		return txn.Set(groupKey(group.ID), value)
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: group %s", errors.ErrConflict, group.ID)
	}
	if err != nil {
		return err
	}
	group.Version++
	return nil
}

func (r *GroupRepository) Delete(id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(groupKey(id))
	})
}

// storedVersion reads just the version of an existing record; absent
// records report version zero, matching a never-saved aggregate.
func storedVersion(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var record struct {
		Version uint64
	}
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &record)
	}); err != nil {
		return 0, err
	}
	return record.Version, nil
}
