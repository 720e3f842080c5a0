// Package notify транслирует зафиксированные изменения в push-события
// для подключенных подписчиков: переходы release-времен раунда в канал
// турнира и сигналы "ваши дебаты изменились" в каналы участников.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/pkg/api"
)

// Буфер подписчика: медленный потребитель молча теряет события, а не
// блокирует коммит.
const subscriberBuffer = 16

// tournamentState — снапшот release-времен раундов турнира. Живет,
// пока есть хотя бы один подписчик; последний ушедший уносит снапшот,
// следующий подписчик построит свежий.
type tournamentState struct {
	subs       map[chan api.Event]struct{}
	roundTimes map[uuid.UUID]map[string]*time.Time
	mu         sync.Mutex
}

// Manager держит broadcast-каналы и снапшоты. Блокировка mu покрывает
// членство подписчиков и сами отправки; диф снапшота идет под
// per-tournament блокировкой состояния.
type Manager struct {
	tournaments  map[uuid.UUID]*tournamentState
	participants map[uuid.UUID]map[chan api.Event]struct{}
	logger       *slog.Logger
	mu           sync.Mutex
}

// NewManager creates a notification manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		tournaments:  make(map[uuid.UUID]*tournamentState),
		participants: make(map[uuid.UUID]map[chan api.Event]struct{}),
		logger:       logger,
	}
}

// Subscription — объединенный поток событий турнира и участника.
// Закрывается вызовом Close; канал C закрывается менеджером.
type Subscription struct {
	C             <-chan api.Event
	manager       *Manager
	ch            chan api.Event
	tournamentID  uuid.UUID
	participantID uuid.UUID
	once          sync.Once
}

// Close отписывает подписчика и закрывает поток.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.manager.unsubscribe(s)
	})
}

// Subscribe подключает участника к объединенному потоку: события его
// турнира плюс его персональные события. Первый подписчик турнира
// строит снапшот release-времен из хранилища.
func (m *Manager) Subscribe(ctx context.Context, q storage.Querier, tournamentID, participantID uuid.UUID) (*Subscription, error) {
	m.mu.Lock()
	_, loaded := m.tournaments[tournamentID]
	m.mu.Unlock()

	// Снапшот строится вне блокировки: загрузка раундов может быть
	// медленной. Гонка двух первых подписчиков разрешается повторной
	// проверкой ниже.
	var roundTimes map[uuid.UUID]map[string]*time.Time
	if !loaded {
		rounds, err := q.TournamentRounds(ctx, tournamentID)
		if err != nil {
			return nil, err
		}
		roundTimes = make(map[uuid.UUID]map[string]*time.Time, len(rounds))
		for _, round := range rounds {
			roundTimes[round.UUID] = releaseTimes(round)
		}
	}

	ch := make(chan api.Event, subscriberBuffer)

	m.mu.Lock()
	state, ok := m.tournaments[tournamentID]
	if !ok {
		if roundTimes == nil {
			roundTimes = make(map[uuid.UUID]map[string]*time.Time)
		}
		state = &tournamentState{
			subs:       make(map[chan api.Event]struct{}),
			roundTimes: roundTimes,
		}
		m.tournaments[tournamentID] = state
	}
	state.subs[ch] = struct{}{}

	if m.participants[participantID] == nil {
		m.participants[participantID] = make(map[chan api.Event]struct{})
	}
	m.participants[participantID][ch] = struct{}{}
	m.mu.Unlock()

	return &Subscription{
		C:             ch,
		manager:       m,
		ch:            ch,
		tournamentID:  tournamentID,
		participantID: participantID,
	}, nil
}

func (m *Manager) unsubscribe(s *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.tournaments[s.tournamentID]; ok {
		delete(state.subs, s.ch)
		if len(state.subs) == 0 {
			// Последний подписчик уносит снапшот.
			delete(m.tournaments, s.tournamentID)
		}
	}

	if chans, ok := m.participants[s.participantID]; ok {
		delete(chans, s.ch)
		if len(chans) == 0 {
			delete(m.participants, s.participantID)
		}
	}

	close(s.ch)
}

// ProcessBatch переводит зафиксированный батч в события: диф
// release-времен по каждому затронутому раунду и сигнал каждому
// участнику, которого касается зафиксированный ballot. Ошибки
// резолвинга логируются и глушатся — уведомления не валят коммит.
func (m *Manager) ProcessBatch(ctx context.Context, q storage.Querier, group *batch.Batch) {
	// Участники ballot-ов резолвятся до блокировки: это запросы к базе.
	ballotRecipients := make(map[uuid.UUID][]uuid.UUID)
	for _, rec := range group.RecordsOfKind(models.KindBallot) {
		ballot := rec.(*models.Ballot)
		recipients, err := m.resolveBallotParticipants(ctx, q, ballot)
		if err != nil {
			m.logger.Warn("failed to resolve ballot participants",
				"ballot_id", ballot.UUID, "error", err)
			continue
		}
		ballotRecipients[ballot.UUID] = recipients
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range group.RecordsOfKind(models.KindRound) {
		round := rec.(*models.Round)
		state, ok := m.tournaments[round.TournamentID]
		if !ok {
			// Нет подписчиков — нет снапшота, диффить не с чем.
			continue
		}
		m.notifyRoundChanges(state, round)
	}

	for ballotID, recipients := range ballotRecipients {
		id := ballotID
		event := api.Event{Type: api.EventBallotChanged, BallotID: &id}
		for _, participantID := range recipients {
			for ch := range m.participants[participantID] {
				send(ch, event)
			}
		}
	}
}

// notifyRoundChanges диффит release-времена раунда против снапшота и
// шлет по событию на каждое изменившееся поле.
func (m *Manager) notifyRoundChanges(state *tournamentState, round *models.Round) {
	state.mu.Lock()
	defer state.mu.Unlock()

	prev, ok := state.roundTimes[round.UUID]
	if !ok {
		prev = make(map[string]*time.Time)
		state.roundTimes[round.UUID] = prev
	}

	roundID := round.UUID
	for _, kind := range releaseTimeKinds {
		newTime := releaseTimes(round)[kind]
		if timesEqual(prev[kind], newTime) {
			continue
		}
		prev[kind] = newTime

		event := api.Event{
			Type:     api.EventReleaseTimeUpdated,
			RoundID:  &roundID,
			TimeKind: kind,
			NewTime:  newTime,
		}
		for ch := range state.subs {
			send(ch, event)
		}
	}
}

// resolveBallotParticipants собирает всех, кого касается ballot: спикеров
// обеих команд, спикеров отдельных речей, судей и председателя.
// Ровно один запрос к базе (члены команд), без предвычисленных индексов.
func (m *Manager) resolveBallotParticipants(ctx context.Context, q storage.Querier, ballot *models.Ballot) ([]uuid.UUID, error) {
	var teamIDs []uuid.UUID
	if ballot.Government != nil {
		teamIDs = append(teamIDs, *ballot.Government)
	}
	if ballot.Opposition != nil {
		teamIDs = append(teamIDs, *ballot.Opposition)
	}

	members, err := q.TeamMembers(ctx, teamIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool)
	var recipients []uuid.UUID
	add := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}

	for _, member := range members {
		add(member.UUID)
	}
	for _, speech := range ballot.Speeches {
		if speech.Speaker != nil {
			add(*speech.Speaker)
		}
	}
	for _, adjudicator := range ballot.Adjudicators {
		add(adjudicator)
	}
	if ballot.President != nil {
		add(*ballot.President)
	}

	return recipients, nil
}

// send — fire-and-forget: переполненный канал молча теряет событие.
func send(ch chan api.Event, event api.Event) {
	select {
	case ch <- event:
	default:
	}
}

var releaseTimeKinds = []string{
	api.ReleaseTimeDraw,
	api.ReleaseTimeMotionForTeams,
	api.ReleaseTimeDebateStart,
	api.ReleaseTimeMotionForAll,
	api.ReleaseTimeRoundClose,
}

func releaseTimes(round *models.Round) map[string]*time.Time {
	return map[string]*time.Time{
		api.ReleaseTimeDraw:           round.DrawReleaseTime,
		api.ReleaseTimeMotionForTeams: round.TeamMotionReleaseTime,
		api.ReleaseTimeDebateStart:    round.DebateStartTime,
		api.ReleaseTimeMotionForAll:   round.FullMotionReleaseTime,
		api.ReleaseTimeRoundClose:     round.RoundCloseTime,
	}
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
