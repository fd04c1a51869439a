//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"group-chat/domain"
	"group-chat/errors"
)

type IUserRepository interface {
	Load(id string) (*domain.User, error)
	Save(user *domain.User) error
}

// UserRepository persists the denormalized user-side group index under
// "user:{id}". Identity itself is verified upstream, so a user that was
// never saved loads as an empty record rather than an error.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func (r *UserRepository) Load(id string) (*domain.User, error) {
	user := domain.User{ID: id}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &user)
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Save(user *domain.User) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		stored, err := storedVersion(txn, userKey(user.ID))
		if err != nil {
			return err
		}
		if stored != user.Version {
			return fmt.Errorf("%w: user %s has version %d, expected %d",
				errors.ErrConflict, user.ID, stored, user.Version)
		}
		next := *user
		next.Version = user.Version + 1
		value, err := json.Marshal(&next)
		if err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), value)
	})
	if stderrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: user %s", errors.ErrConflict, user.ID)
	}
	if err != nil {
		return err
	}
	user.Version++
	return nil
}
