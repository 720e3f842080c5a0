package sync

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/internal/server/storage/sqlite"
)

func newTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

// commit сохраняет батч через журнал и возвращает новую голову.
func commit(t *testing.T, s *sqlite.Storage, tournamentID uuid.UUID, b *batch.Batch) *models.LogEntry {
	t.Helper()

	var head *models.LogEntry
	err := s.InTx(context.Background(), func(q storage.Querier) error {
		var txErr error
		head, txErr = b.SaveAllAndLog(context.Background(), q, tournamentID)
		return txErr
	})
	require.NoError(t, err)
	return head
}

func condensedByID(entries []CondensedEntry) map[uuid.UUID]CondensedEntry {
	m := make(map[uuid.UUID]CondensedEntry, len(entries))
	for _, e := range entries {
		m[e.UUID] = e
	}
	return m
}

func TestChangesSince_CondensesToLatestVersion(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()
	teamID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	commit(t, s, tournamentID, b)

	// Три версии одной команды.
	for _, name := range []string{"v1", "v2", "v3"} {
		b := batch.New()
		b.Add(&models.Team{UUID: teamID, Name: name, TournamentID: tournamentID})
		commit(t, s, tournamentID, b)
	}

	fat, err := ChangesSince(ctx, s, tournamentID, nil)
	require.NoError(t, err)

	require.Len(t, fat.Log, 4, "the flat log keeps every entry")

	teams := condensedByID(fat.Entities[models.KindTeam])
	require.Len(t, teams, 1, "condensed to one entry per entity")

	entry := teams[teamID]
	assert.Len(t, entry.OldVersions, 2)
	assert.Equal(t, fat.Log[3].UUID, entry.CurrentVersion, "current version is the last log entry")
	assert.Equal(t, fat.Log[1].UUID, entry.OldVersions[0])
	assert.Equal(t, fat.Log[2].UUID, entry.OldVersions[1])

	require.False(t, entry.CurrentValue.Deleted())
	assert.Equal(t, "v3", entry.CurrentValue.Record.(*models.Team).Name)
}

func TestChangesSince_Cursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	cursor := commit(t, s, tournamentID, b)

	teamID := uuid.New()
	b = batch.New()
	b.Add(&models.Team{UUID: teamID, Name: "Alpha", TournamentID: tournamentID})
	commit(t, s, tournamentID, b)

	fat, err := ChangesSince(ctx, s, tournamentID, &cursor.UUID)
	require.NoError(t, err)

	require.Len(t, fat.Log, 1)
	assert.NotContains(t, fat.Entities, models.KindTournament, "entities before the cursor are not included")
	assert.Len(t, fat.Entities[models.KindTeam], 1)
}

func TestChangesSince_Tombstone(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()
	teamID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	b.Add(&models.Team{UUID: teamID, Name: "Alpha", TournamentID: tournamentID})
	commit(t, s, tournamentID, b)

	b = batch.New()
	b.Delete(models.KindTeam, teamID)
	commit(t, s, tournamentID, b)

	fat, err := ChangesSince(ctx, s, tournamentID, nil)
	require.NoError(t, err)

	teams := condensedByID(fat.Entities[models.KindTeam])
	entry := teams[teamID]
	assert.True(t, entry.CurrentValue.Deleted(), "deleted entity is delivered as a tombstone")
	assert.Len(t, entry.OldVersions, 1)
}

func TestChangesSince_UnknownCursor(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	unknown := uuid.New()
	_, err := ChangesSince(ctx, s, uuid.New(), &unknown)
	assert.ErrorIs(t, err, storage.ErrUnknownCursor)
}
