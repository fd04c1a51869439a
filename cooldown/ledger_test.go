package cooldown

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLedger_CanRejoin_NoRecord(t *testing.T) {
	req := require.New(t)
	ledger := NewLedger(openDB(t), 48*time.Hour, time.Now)

	// Given a user who never left the group
	ok, err := ledger.CanRejoin(uuid.NewString(), uuid.New())

	req.NoError(err)
	req.True(ok)
}

func TestLedger_CanRejoin_CooldownElapse(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	clock := func() time.Time { return now }
	ledger := NewLedger(openDB(t), 48*time.Hour, clock)
	userID := uuid.NewString()
	groupID := uuid.New()

	// Given the user just left
	req.NoError(ledger.RecordLeave(userID, groupID, now))

	// Then rejoin is blocked immediately
	ok, err := ledger.CanRejoin(userID, groupID)
	req.NoError(err)
	req.False(ok)

	// And still blocked just before the cooldown expires
	now = now.Add(48*time.Hour - time.Second)
	ok, err = ledger.CanRejoin(userID, groupID)
	req.NoError(err)
	req.False(ok)

	// When 48 hours have fully elapsed
	now = now.Add(time.Second)
	ok, err = ledger.CanRejoin(userID, groupID)
	req.NoError(err)
	req.True(ok)
}

func TestLedger_RecordLeave_Overwrites(t *testing.T) {
	req := require.New(t)
	start := time.Now().UTC()
	now := start
	ledger := NewLedger(openDB(t), 48*time.Hour, func() time.Time { return now })
	userID := uuid.NewString()
	groupID := uuid.New()

	// Given a first leave whose cooldown has elapsed
	req.NoError(ledger.RecordLeave(userID, groupID, start))
	now = start.Add(49 * time.Hour)
	ok, err := ledger.CanRejoin(userID, groupID)
	req.NoError(err)
	req.True(ok)

	// When the user leaves again, the single entry is overwritten
	req.NoError(ledger.RecordLeave(userID, groupID, now))
	ok, err = ledger.CanRejoin(userID, groupID)
	req.NoError(err)
	req.False(ok)
}
