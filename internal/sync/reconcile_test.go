package sync

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/internal/server/storage/sqlite"
)

// remoteChange строит пару (строка журнала, condensed-запись) для одной
// чужой версии записи.
func remoteChange(rec models.Record) (models.LogEntry, CondensedEntry) {
	version := uuid.New()
	entry := models.LogEntry{
		UUID:       version,
		TargetKind: rec.RecordKind(),
		TargetUUID: rec.RecordUUID(),
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	}
	condensed := CondensedEntry{
		UUID:           rec.RecordUUID(),
		CurrentVersion: version,
		CurrentValue:   models.Exists(rec),
	}
	return entry, condensed
}

func reconcileInTx(t *testing.T, s *sqlite.Storage, tournamentID uuid.UUID, remote *FatLog, lca *uuid.UUID, strategy MergeStrategy) (*Outcome, error) {
	t.Helper()

	var outcome *Outcome
	err := s.InTx(context.Background(), func(q storage.Querier) error {
		var txErr error
		outcome, txErr = Reconcile(context.Background(), q, tournamentID, remote, lca, strategy, true)
		return txErr
	})
	return outcome, err
}

func TestReconcile_IntoEmptyTournament(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()

	tournament := &models.Tournament{UUID: tournamentID, Name: "Open"}
	teamID := uuid.New()
	team := &models.Team{UUID: teamID, Name: "Alpha", TournamentID: tournamentID}

	e1, c1 := remoteChange(tournament)
	e2, c2 := remoteChange(team)
	remote := &FatLog{
		Log: []models.LogEntry{e1, e2},
		Entities: map[models.EntityKind][]CondensedEntry{
			models.KindTournament: {c1},
			models.KindTeam:       {c2},
		},
	}

	outcome, err := reconcileInTx(t, s, tournamentID, remote, nil, MergeAlwaysLocal)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, e2.UUID, outcome.NewLastCommonAncestor, "ancestor is the last appended remote entry")

	// Журнал реплицирован с исходными id версий и локальной нумерацией.
	log, err := s.LogSince(ctx, tournamentID, nil)
	require.NoError(t, err)
	require.Len(t, log, 2)
	assert.Equal(t, e1.UUID, log[0].UUID)
	assert.Equal(t, int64(1), log[0].SequenceIdx)
	assert.Equal(t, e2.UUID, log[1].UUID)

	teams, err := s.LoadRecords(ctx, models.KindTeam, []uuid.UUID{teamID})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", teams[teamID].(*models.Team).Name)
}

func TestReconcile_AmbiguousAncestor(t *testing.T) {
	s := newTestStorage(t)

	remote := &FatLog{Entities: map[models.EntityKind][]CondensedEntry{}}
	outcome, err := reconcileInTx(t, s, uuid.New(), remote, nil, MergeAlwaysLocal)
	require.NoError(t, err)
	assert.Equal(t, StatusAmbiguousAncestor, outcome.Status)
}

func TestReconcile_EmptyRemoteKeepsAncestor(t *testing.T) {
	s := newTestStorage(t)
	tournamentID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	head := commit(t, s, tournamentID, b)

	remote := &FatLog{Entities: map[models.EntityKind][]CondensedEntry{}}
	outcome, err := reconcileInTx(t, s, tournamentID, remote, &head.UUID, MergeReject)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, head.UUID, outcome.NewLastCommonAncestor)
}

func TestReconcile_RejectStrategy(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	ancestor := commit(t, s, tournamentID, b)

	// Локальное изменение после общего предка.
	b = batch.New()
	b.Add(&models.Team{UUID: uuid.New(), Name: "Local", TournamentID: tournamentID})
	commit(t, s, tournamentID, b)

	e, c := remoteChange(&models.Team{UUID: uuid.New(), Name: "Remote", TournamentID: tournamentID})
	remote := &FatLog{
		Log:      []models.LogEntry{e},
		Entities: map[models.EntityKind][]CondensedEntry{models.KindTeam: {c}},
	}

	outcome, err := reconcileInTx(t, s, tournamentID, remote, &ancestor.UUID, MergeReject)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, outcome.Status)

	// Отклоненный push не меняет журнал.
	log, err := s.LogSince(ctx, tournamentID, nil)
	require.NoError(t, err)
	assert.Len(t, log, 2)
}

func TestReconcile_ConflictLocalWins(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()
	teamID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Open"})
	b.Add(&models.Team{UUID: teamID, Name: "Base", TournamentID: tournamentID})
	ancestor := commit(t, s, tournamentID, b)

	// Обе стороны меняют одну команду после общего предка.
	b = batch.New()
	b.Add(&models.Team{UUID: teamID, Name: "Local", TournamentID: tournamentID})
	commit(t, s, tournamentID, b)

	eConflict, cConflict := remoteChange(&models.Team{UUID: teamID, Name: "Remote", TournamentID: tournamentID})
	otherID := uuid.New()
	eOther, cOther := remoteChange(&models.Team{UUID: otherID, Name: "NewTeam", TournamentID: tournamentID})
	remote := &FatLog{
		Log:      []models.LogEntry{eConflict, eOther},
		Entities: map[models.EntityKind][]CondensedEntry{models.KindTeam: {cConflict, cOther}},
	}

	outcome, err := reconcileInTx(t, s, tournamentID, remote, &ancestor.UUID, MergeAlwaysLocal)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, eOther.UUID, outcome.NewLastCommonAncestor)

	// Журнал: 3 локальных + 2 чужих + 1 синтетическая строка конфликта.
	log, err := s.LogSince(ctx, tournamentID, nil)
	require.NoError(t, err)
	require.Len(t, log, 6)

	synthetic := log[5]
	assert.Equal(t, models.KindTeam, synthetic.TargetKind)
	assert.Equal(t, teamID, synthetic.TargetUUID)
	assert.NotEqual(t, eConflict.UUID, synthetic.UUID, "the conflict entry is a fresh mutation")

	// Локальное значение победило, неконфликтующее чужое применилось.
	teams, err := s.LoadRecords(ctx, models.KindTeam, []uuid.UUID{teamID, otherID})
	require.NoError(t, err)
	assert.Equal(t, "Local", teams[teamID].(*models.Team).Name)
	assert.Equal(t, "NewTeam", teams[otherID].(*models.Team).Name)

	// Следующий fetch с предком клиента доставит и синтетическую строку,
	// так что оба пира сойдутся к локальному значению.
	fat, err := ChangesSince(ctx, s, tournamentID, &eOther.UUID)
	require.NoError(t, err)
	require.Len(t, fat.Log, 1)
	converged := condensedByID(fat.Entities[models.KindTeam])[teamID]
	assert.Equal(t, "Local", converged.CurrentValue.Record.(*models.Team).Name)
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	tournamentID := uuid.New()

	e1, c1 := remoteChange(&models.Tournament{UUID: tournamentID, Name: "Open"})
	remote := &FatLog{
		Log:      []models.LogEntry{e1},
		Entities: map[models.EntityKind][]CondensedEntry{models.KindTournament: {c1}},
	}

	first, err := reconcileInTx(t, s, tournamentID, remote, nil, MergeAlwaysLocal)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, first.Status)

	// Повторный push того же журнала ничего не дублирует.
	second, err := reconcileInTx(t, s, tournamentID, remote, nil, MergeAlwaysLocal)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, second.Status)
	assert.Equal(t, first.NewLastCommonAncestor, second.NewLastCommonAncestor)

	log, err := s.LogSince(ctx, tournamentID, nil)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestReconcile_CrossTournamentRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	tournamentID := uuid.New()
	foreignID := uuid.New()

	b := batch.New()
	b.Add(&models.Tournament{UUID: tournamentID, Name: "Ours"})
	ancestor := commit(t, s, tournamentID, b)

	// Команда, принадлежащая другому турниру.
	e, c := remoteChange(&models.Team{UUID: uuid.New(), Name: "Smuggled", TournamentID: foreignID})
	remote := &FatLog{
		Log:      []models.LogEntry{e},
		Entities: map[models.EntityKind][]CondensedEntry{models.KindTeam: {c}},
	}

	_, err := reconcileInTx(t, s, tournamentID, remote, &ancestor.UUID, MergeAlwaysLocal)
	require.ErrorIs(t, err, ErrCrossTournament)

	// Транзакция откатилась, журнал не тронут.
	log, err := s.LogSince(ctx, tournamentID, nil)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestParseMergeStrategy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MergeStrategy
		wantErr bool
	}{
		{name: "reject", input: "reject", want: MergeReject},
		{name: "always_local", input: "always_local", want: MergeAlwaysLocal},
		{name: "unknown", input: "latest_wins", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMergeStrategy(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
