package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"group-chat/errors"
)

// seedMessages stores n messages one minute apart, oldest first, and
// returns them in store order.
func seedMessages(t *testing.T, repository *MessageRepository, groupID uuid.UUID, n int) []StoredMessage {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var messages []StoredMessage
	for i := 0; i < n; i++ {
		message := StoredMessage{
			ID:         uuid.New(),
			GroupID:    groupID,
			SenderID:   fmt.Sprintf("sender-%d", i),
			Ciphertext: []byte{byte(i)},
			IV:         []byte{byte(i), 1, 2},
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repository.Store(message))
		messages = append(messages, message)
	}
	return messages
}

func TestMessageRepository_PageNewestFirst(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 5)

	page, err := repository.Page(groupID, 3, nil, nil)
	req.NoError(err)
	req.Len(page, 3)

	// Newest first: the last three seeded, in reverse store order
	got := lo.Map(page, func(m StoredMessage, _ int) uuid.UUID { return m.ID })
	req.Equal([]uuid.UUID{seeded[4].ID, seeded[3].ID, seeded[2].ID}, got)
}

func TestMessageRepository_PageBounds(t *testing.T) {
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 5)

	t.Run("before is exclusive", func(t *testing.T) {
		req := require.New(t)
		before := seeded[2].CreatedAt
		page, err := repository.Page(groupID, 10, &before, nil)
		req.NoError(err)
		req.Len(page, 2)
		req.Equal(seeded[1].ID, page[0].ID)
		req.Equal(seeded[0].ID, page[1].ID)
	})

	t.Run("after is exclusive", func(t *testing.T) {
		req := require.New(t)
		after := seeded[2].CreatedAt
		page, err := repository.Page(groupID, 10, nil, &after)
		req.NoError(err)
		req.Len(page, 2)
		req.Equal(seeded[4].ID, page[0].ID)
		req.Equal(seeded[3].ID, page[1].ID)
	})

	t.Run("before wins when both are set", func(t *testing.T) {
		req := require.New(t)
		before := seeded[1].CreatedAt
		after := seeded[3].CreatedAt
		page, err := repository.Page(groupID, 10, &before, &after)
		req.NoError(err)
		req.Len(page, 1)
		req.Equal(seeded[0].ID, page[0].ID)
	})
}

func TestMessageRepository_PageExcludesDeleted(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 3)

	deleted := seeded[1]
	deleted.Version = 1
	deleted.Deleted = true
	at := time.Now().UTC()
	deleted.DeletedAt = &at
	req.NoError(repository.Update(deleted))

	page, err := repository.Page(groupID, 10, nil, nil)
	req.NoError(err)
	req.Len(page, 2)
	for _, message := range page {
		req.NotEqual(deleted.ID, message.ID)
	}
}

func TestMessageRepository_GroupsAreIsolated(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupA := uuid.New()
	groupB := uuid.New()
	seedMessages(t, repository, groupA, 3)
	seedMessages(t, repository, groupB, 2)

	page, err := repository.Page(groupA, 10, nil, nil)
	req.NoError(err)
	req.Len(page, 3)
}

func TestMessageRepository_LoadByID(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 2)

	loaded, err := repository.LoadByID(seeded[0].ID)
	req.NoError(err)
	req.Equal(seeded[0].ID, loaded.ID)
	req.Equal(seeded[0].SenderID, loaded.SenderID)
	req.Equal(uint64(1), loaded.Version)

	_, err = repository.LoadByID(uuid.New())
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func TestMessageRepository_UpdateConflictsOnStaleVersion(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 1)

	current, err := repository.LoadByID(seeded[0].ID)
	req.NoError(err)
	current.Edited = true
	req.NoError(repository.Update(current))

	// A second update from the same loaded version is stale
	stale := current
	stale.Version = 1
	req.ErrorIs(repository.Update(stale), errors.ErrConflict)
}

func TestMessageRepository_Recent_SkipsDeleted(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	seeded := seedMessages(t, repository, groupID, 5)

	newest := seeded[4]
	newest.Version = 1
	newest.Deleted = true
	at := time.Now().UTC()
	newest.DeletedAt = &at
	req.NoError(repository.Update(newest))

	recent, err := repository.Recent(groupID, 3)
	req.NoError(err)
	req.Len(recent, 3)
	req.Equal(seeded[3].ID, recent[0].ID)
	req.Equal(seeded[2].ID, recent[1].ID)
	req.Equal(seeded[1].ID, recent[2].ID)
}

func TestMessageRepository_DeleteAllInGroup(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t))
	groupID := uuid.New()
	otherGroup := uuid.New()
	seeded := seedMessages(t, repository, groupID, 4)
	kept := seedMessages(t, repository, otherGroup, 2)

	req.NoError(repository.DeleteAllInGroup(groupID))

	page, err := repository.Page(groupID, 10, nil, nil)
	req.NoError(err)
	req.Empty(page)

	// Index entries are gone with the records
	_, err = repository.LoadByID(seeded[0].ID)
	req.ErrorIs(err, errors.ErrMessageNotFound)

	// Other groups are untouched
	_, err = repository.LoadByID(kept[0].ID)
	req.NoError(err)
}
