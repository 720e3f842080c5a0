package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/client/storage"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	// Пустая база — не аутентифицированы.
	_, err := s.GetSession(ctx)
	require.ErrorIs(t, err, storage.ErrNotAuthenticated)

	session := &storage.Session{
		Username:    "alice",
		UserID:      uuid.NewString(),
		AccessToken: "token",
	}
	require.NoError(t, s.SaveSession(ctx, session))

	got, err := s.GetSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session, got)

	require.NoError(t, s.ClearSession(ctx))
	_, err = s.GetSession(ctx)
	assert.ErrorIs(t, err, storage.ErrNotAuthenticated)
}

func TestCursors(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tournamentID := uuid.New()

	// Нет курсора — nil, не ошибка.
	cursor, err := s.Cursor(ctx, tournamentID)
	require.NoError(t, err)
	assert.Nil(t, cursor)

	head := uuid.New()
	require.NoError(t, s.SetCursor(ctx, tournamentID, head))

	cursor, err = s.Cursor(ctx, tournamentID)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, head, *cursor)

	// Перезапись двигает курсор.
	newHead := uuid.New()
	require.NoError(t, s.SetCursor(ctx, tournamentID, newHead))

	other := uuid.New()
	require.NoError(t, s.SetCursor(ctx, other, uuid.New()))

	all, err := s.Cursors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newHead, all[tournamentID])
}

func TestMirror(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tournamentID := uuid.New()
	teamID := uuid.New()
	roundID := uuid.New()

	require.NoError(t, s.SaveEntity(ctx, tournamentID, "team", teamID, []byte(`{"name":"Alpha"}`)))
	require.NoError(t, s.SaveEntity(ctx, tournamentID, "team", uuid.New(), []byte(`{"name":"Beta"}`)))
	require.NoError(t, s.SaveEntity(ctx, tournamentID, "round", roundID, []byte(`{"round_number":1}`)))

	counts, err := s.EntityCounts(ctx, tournamentID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"team": 2, "round": 1}, counts)

	// Tombstone убирает запись из зеркала.
	require.NoError(t, s.DeleteEntity(ctx, tournamentID, "team", teamID))

	counts, err = s.EntityCounts(ctx, tournamentID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"team": 1, "round": 1}, counts)

	// Удаление из неизвестного турнира — no-op.
	require.NoError(t, s.DeleteEntity(ctx, uuid.New(), "team", teamID))

	// Зеркала турниров независимы.
	empty, err := s.EntityCounts(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}
