package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/sync"
	"github.com/iudanet/tabsync/pkg/api"
)

func TestFatLogWireRoundTrip(t *testing.T) {
	tournamentID := uuid.New()
	teamID := uuid.New()
	goneID := uuid.New()
	version := uuid.New()

	fat := &sync.FatLog{
		Log: []models.LogEntry{{
			UUID:       version,
			TargetKind: models.KindTeam,
			TargetUUID: teamID,
			Timestamp:  time.Now().UTC().Truncate(time.Second),
		}},
		Entities: map[models.EntityKind][]sync.CondensedEntry{
			models.KindTeam: {
				{
					UUID:           teamID,
					CurrentVersion: version,
					CurrentValue:   models.Exists(&models.Team{UUID: teamID, Name: "Alpha", TournamentID: tournamentID}),
				},
				{
					UUID:           goneID,
					CurrentVersion: uuid.New(),
					CurrentValue:   models.DeletedState(models.KindTeam, goneID),
				},
			},
		},
	}

	wire, err := toWireFatLog(fat)
	require.NoError(t, err)

	back, err := fromWireFatLog(wire)
	require.NoError(t, err)

	require.Len(t, back.Log, 1)
	assert.Equal(t, models.KindTeam, back.Log[0].TargetKind)

	entries := back.Entities[models.KindTeam]
	require.Len(t, entries, 2)

	byID := make(map[uuid.UUID]sync.CondensedEntry)
	for _, e := range entries {
		byID[e.UUID] = e
	}
	assert.Equal(t, "Alpha", byID[teamID].CurrentValue.Record.(*models.Team).Name)
	assert.True(t, byID[goneID].CurrentValue.Deleted())
}

func TestFromWireFatLog_Malformed(t *testing.T) {
	// Неизвестный kind в журнале.
	_, err := fromWireFatLog(&api.FatLog{
		Log: []api.LogEntry{{UUID: uuid.New(), TargetKind: "dragon", TargetUUID: uuid.New()}},
	})
	assert.ErrorContains(t, err, "unknown entity kind")

	// Неизвестный kind в entities.
	_, err = fromWireFatLog(&api.FatLog{
		Entities: map[string][]api.CondensedEntry{"dragon": {}},
	})
	assert.ErrorContains(t, err, "unknown entity kind")

	// Значение не совпадает по id со своей записью.
	value, err := models.EncodeRecord(&models.Team{UUID: uuid.New(), Name: "Alpha", TournamentID: uuid.New()})
	require.NoError(t, err)
	_, err = fromWireFatLog(&api.FatLog{
		Entities: map[string][]api.CondensedEntry{
			string(models.KindTeam): {{
				UUID:           uuid.New(),
				CurrentVersion: uuid.New(),
				CurrentValue:   api.EntityValue{Value: value},
			}},
		},
	})
	assert.ErrorContains(t, err, "carries value with id")

	// Битый JSON в значении.
	_, err = fromWireFatLog(&api.FatLog{
		Entities: map[string][]api.CondensedEntry{
			string(models.KindTeam): {{
				UUID:           uuid.New(),
				CurrentVersion: uuid.New(),
				CurrentValue:   api.EntityValue{Value: []byte("{")},
			}},
		},
	})
	assert.ErrorContains(t, err, "failed to decode")
}
