package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/sync"
	"github.com/iudanet/tabsync/pkg/api"
)

// wireTeamChange собирает SyncRequest с одной чужой версией команды.
func wireTeamChange(t *testing.T, team *models.Team, lca *uuid.UUID) ([]byte, uuid.UUID) {
	t.Helper()

	value, err := models.EncodeRecord(team)
	require.NoError(t, err)

	version := uuid.New()
	req := api.SyncRequest{
		LastCommonAncestor: lca,
		Log: api.FatLog{
			Log: []api.LogEntry{{
				UUID:       version,
				TargetKind: string(models.KindTeam),
				TargetUUID: team.UUID,
				Timestamp:  time.Now().UTC().Truncate(time.Second),
			}},
			Entities: map[string][]api.CondensedEntry{
				string(models.KindTeam): {{
					UUID:           team.UUID,
					CurrentVersion: version,
					CurrentValue:   api.EntityValue{Value: value},
				}},
			},
		},
	}

	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body, version
}

func fetchLog(t *testing.T, mux *http.ServeMux, userID, tournamentID uuid.UUID, since string) *httptest.ResponseRecorder {
	t.Helper()

	url := "/api/v1/tournament/" + tournamentID.String() + "/log"
	if since != "" {
		url += "?since=" + since
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, url, nil), userID))
	return w
}

func pushLog(t *testing.T, mux *http.ServeMux, userID, tournamentID uuid.UUID, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	url := "/api/v1/tournament/" + tournamentID.String() + "/log"
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, authed(httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body)), userID))
	return w
}

func TestLogHandler_Fetch(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()
	head := seedTournament(t, s, tournamentID, userID)

	// Полный снапшот.
	w := fetchLog(t, mux, userID, tournamentID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var fat api.FatLog
	require.NoError(t, json.NewDecoder(w.Body).Decode(&fat))
	require.Len(t, fat.Log, 1)
	assert.Equal(t, head.UUID, fat.Log[0].UUID)
	assert.Len(t, fat.Entities[string(models.KindTournament)], 1)

	// Курсор на голове — пустая дельта.
	w = fetchLog(t, mux, userID, tournamentID, head.UUID.String())
	require.Equal(t, http.StatusOK, w.Code)
	fat = api.FatLog{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&fat))
	assert.Empty(t, fat.Log)

	// Мусорный и неизвестный курсоры.
	assert.Equal(t, http.StatusBadRequest, fetchLog(t, mux, userID, tournamentID, "not-a-uuid").Code)
	assert.Equal(t, http.StatusNotFound, fetchLog(t, mux, userID, tournamentID, uuid.NewString()).Code)
}

func TestLogHandler_AccessControl(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()
	seedTournament(t, s, tournamentID, userID)

	// Несуществующий турнир.
	assert.Equal(t, http.StatusNotFound, fetchLog(t, mux, userID, uuid.New(), "").Code)

	// Пользователь без права доступа.
	assert.Equal(t, http.StatusForbidden, fetchLog(t, mux, uuid.New(), tournamentID, "").Code)

	// Кривой id турнира.
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, authed(httptest.NewRequest(http.MethodGet, "/api/v1/tournament/oops/log", nil), userID))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Запрос без аутентифицированного пользователя.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tournament/"+tournamentID.String()+"/log", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogHandler_Push(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()
	head := seedTournament(t, s, tournamentID, userID)

	team := &models.Team{UUID: uuid.New(), Name: "Alpha", TournamentID: tournamentID}
	body, version := wireTeamChange(t, team, &head.UUID)

	w := pushLog(t, mux, userID, tournamentID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, api.OutcomeSuccess, resp.Outcome)
	require.NotNil(t, resp.NewLastCommonAncestor)
	assert.Equal(t, version, *resp.NewLastCommonAncestor)

	// Повторный push того же журнала идемпотентен.
	w = pushLog(t, mux, userID, tournamentID, body)
	require.Equal(t, http.StatusOK, w.Code)
	var again api.SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&again))
	assert.Equal(t, resp.NewLastCommonAncestor, again.NewLastCommonAncestor)

	// Изменение доехало до журнала.
	fw := fetchLog(t, mux, userID, tournamentID, "")
	require.Equal(t, http.StatusOK, fw.Code)
	var fat api.FatLog
	require.NoError(t, json.NewDecoder(fw.Body).Decode(&fat))
	assert.Len(t, fat.Log, 2)
}

func TestLogHandler_PushAmbiguousAncestor(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()
	seedTournament(t, s, tournamentID, userID)

	// Push без общего предка в непустой журнал.
	team := &models.Team{UUID: uuid.New(), Name: "Alpha", TournamentID: tournamentID}
	body, _ := wireTeamChange(t, team, nil)

	w := pushLog(t, mux, userID, tournamentID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, api.OutcomeAmbiguousAncestor, resp.Outcome)
	assert.Nil(t, resp.NewLastCommonAncestor)

	// Откат: журнал не изменился.
	fw := fetchLog(t, mux, userID, tournamentID, "")
	var fat api.FatLog
	require.NoError(t, json.NewDecoder(fw.Body).Decode(&fat))
	assert.Len(t, fat.Log, 1)
}

func TestLogHandler_PushRejected(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeReject)

	userID := uuid.New()
	tournamentID := uuid.New()
	head := seedTournament(t, s, tournamentID, userID)

	// Локальная запись после предка, с которым придет push.
	local := &models.Team{UUID: uuid.New(), Name: "Local", TournamentID: tournamentID}
	localBody, _ := wireTeamChange(t, local, &head.UUID)
	require.Equal(t, http.StatusOK, pushLog(t, mux, userID, tournamentID, localBody).Code)

	remote := &models.Team{UUID: uuid.New(), Name: "Remote", TournamentID: tournamentID}
	body, _ := wireTeamChange(t, remote, &head.UUID)

	w := pushLog(t, mux, userID, tournamentID, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SyncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, api.OutcomeRejected, resp.Outcome)
}

func TestLogHandler_PushCrossTournament(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()
	head := seedTournament(t, s, tournamentID, userID)

	// Команда чужого турнира в push.
	smuggled := &models.Team{UUID: uuid.New(), Name: "Smuggled", TournamentID: uuid.New()}
	body, _ := wireTeamChange(t, smuggled, &head.UUID)

	assert.Equal(t, http.StatusBadRequest, pushLog(t, mux, userID, tournamentID, body).Code)
}

func TestTournamentHandler_Create(t *testing.T) {
	s := newTestStorage(t)
	mux := newLogMux(t, s, sync.MergeAlwaysLocal)

	userID := uuid.New()
	tournamentID := uuid.New()

	create := func(id uuid.UUID, name string, user *uuid.UUID) *httptest.ResponseRecorder {
		body, err := json.Marshal(api.CreateTournamentRequest{Name: name})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tournament/"+id.String(), bytes.NewReader(body))
		if user != nil {
			req = authed(req, *user)
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		return w
	}

	w := create(tournamentID, "Open", &userID)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp api.CreateTournamentResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, tournamentID, resp.TournamentID)
	assert.NotEqual(t, uuid.Nil, resp.LogHead)

	// Создатель сразу имеет доступ к журналу.
	assert.Equal(t, http.StatusOK, fetchLog(t, mux, userID, tournamentID, "").Code)

	// Повторное создание и отсутствие имени.
	assert.Equal(t, http.StatusConflict, create(tournamentID, "Open", &userID).Code)
	assert.Equal(t, http.StatusBadRequest, create(uuid.New(), "", &userID).Code)
	assert.Equal(t, http.StatusUnauthorized, create(uuid.New(), "Open", nil).Code)
}
