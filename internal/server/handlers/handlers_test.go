package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/cache"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/notify"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/internal/server/storage/sqlite"
	"github.com/iudanet/tabsync/internal/sync"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:         []byte("test-secret"),
		AccessTokenTTL: time.Hour,
	}
}

func newTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

// newLogMux собирает роутер журнала так же, как его собирает сервер:
// паттерны с {tournament_id}, user уже в контексте запроса.
func newLogMux(t *testing.T, s *sqlite.Storage, strategy sync.MergeStrategy) *http.ServeMux {
	t.Helper()

	logger := testLogger()
	h := NewLogHandler(logger, s, cache.New(1<<20), notify.NewManager(logger), strategy)
	th := NewTournamentHandler(logger, s)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tournament/{tournament_id}", th.Create)
	mux.HandleFunc("GET /api/v1/tournament/{tournament_id}/log", h.Fetch)
	mux.HandleFunc("POST /api/v1/tournament/{tournament_id}/log", h.Push)
	return mux
}

// seedTournament коммитит турнир в журнал и выдает userID право доступа.
func seedTournament(t *testing.T, s *sqlite.Storage, tournamentID, userID uuid.UUID) *models.LogEntry {
	t.Helper()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})

	var head *models.LogEntry
	err := s.InTx(context.Background(), func(q storage.Querier) error {
		var txErr error
		head, txErr = b.SaveAllAndLog(context.Background(), q, tournamentID)
		return txErr
	})
	require.NoError(t, err)

	require.NoError(t, s.GrantTournament(context.Background(), userID, tournamentID))
	return head
}

func authed(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(WithUser(r.Context(), userID, "alice"))
}
