package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/demandsight/demand-planner/internal/domain/import/normalizer"
	"github.com/demandsight/demand-planner/internal/domain/import/roles"
	"github.com/demandsight/demand-planner/internal/domain/import/sniffer"
	"github.com/demandsight/demand-planner/internal/domain/import/validator"

	"github.com/google/uuid"
)

func newSession(t *testing.T) (*Store, *Session) {
	t.Helper()
	store := NewStore(time.Hour)
	sess := store.Create(uuid.New(), roles.OrgCapabilities{ImportLevel: roles.ImportLevelCompany})
	return store, sess
}

func TestFileTokenSupersedesOlderWork(t *testing.T) {
	_, sess := newSession(t)

	first := sess.BeginFile("q1.csv")
	assert.False(t, sess.Stale(first))

	second := sess.BeginFile("q2.csv")
	assert.True(t, sess.Stale(first), "older token goes stale the moment a new file arrives")
	assert.False(t, sess.Stale(second))
	assert.Equal(t, "q2.csv", sess.FileName())
}

func TestBeginFileResetsState(t *testing.T) {
	_, sess := newSession(t)

	sess.BeginFile("q1.csv")
	sess.OverrideDateFormat(normalizer.Settings{DateFormat: sniffer.DateYMDDash})
	require.True(t, sess.DateFormatSticky())

	sess.BeginFile("q2.csv")
	assert.False(t, sess.DateFormatSticky(), "stickiness is per-file")
	assert.False(t, sess.NumberFormatSticky())

	sh, c, _ := sess.Current()
	assert.Nil(t, sh)
	assert.Nil(t, c)
}

func TestStickyOverrides(t *testing.T) {
	_, sess := newSession(t)
	sess.BeginFile("q1.csv")

	assert.False(t, sess.DateFormatSticky())
	sess.OverrideDateFormat(normalizer.Settings{DateFormat: sniffer.DateMDYSlash})
	assert.True(t, sess.DateFormatSticky())
	assert.False(t, sess.NumberFormatSticky(), "each format is sticky independently")

	sess.OverrideNumberFormat(normalizer.Settings{NumberFormat: sniffer.NumEU})
	assert.True(t, sess.NumberFormatSticky())

	// A plain refresh does not mark anything sticky.
	sess.BeginFile("q2.csv")
	sess.SetSettings(normalizer.Settings{DateFormat: sniffer.DateYMDDash})
	assert.False(t, sess.DateFormatSticky())
}

func TestImportedBookkeeping(t *testing.T) {
	_, sess := newSession(t)

	sess.AppendImported(validator.ImportedCsvRecord{FileName: "north.csv", Divisions: []string{"North"}})
	sess.AppendImported(validator.ImportedCsvRecord{FileName: "south.csv", Divisions: []string{"South"}})

	got := sess.Imported()
	require.Len(t, got, 2)
	assert.Equal(t, "north.csv", got[0].FileName, "append order preserved")

	// The returned slice is a copy.
	got[0].FileName = "mutated"
	assert.Equal(t, "north.csv", sess.Imported()[0].FileName)

	sess.RemoveImported([]string{"north.csv"})
	remaining := sess.Imported()
	require.Len(t, remaining, 1)
	assert.Equal(t, "south.csv", remaining[0].FileName)
}

func TestStore(t *testing.T) {
	store, sess := newSession(t)

	t.Run("get returns live session", func(t *testing.T) {
		got, err := store.Get(sess.ID)
		require.NoError(t, err)
		assert.Same(t, sess, got)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		store.Delete(sess.ID)
		_, err := store.Get(sess.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSweep(t *testing.T) {
	store := NewStore(10 * time.Millisecond)
	idle := store.Create(uuid.New(), roles.OrgCapabilities{})
	active := store.Create(uuid.New(), roles.OrgCapabilities{})

	time.Sleep(20 * time.Millisecond)
	active.BeginFile("fresh.csv") // touches lastActive

	removed := store.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(active.ID)
	assert.NoError(t, err)
}
