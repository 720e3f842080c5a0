package models

import (
	"time"

	"github.com/google/uuid"
)

// Tournament — корневая запись; всё остальное прямо или косвенно
// ссылается на нее.
type Tournament struct {
	LastModified time.Time `json:"last_modified"`
	Name         string    `json:"name"`
	UUID         uuid.UUID `json:"uuid"`
}

func (t *Tournament) RecordUUID() uuid.UUID  { return t.UUID }
func (t *Tournament) RecordKind() EntityKind { return KindTournament }

// Team представляет команду турнира.
type Team struct {
	Name         string    `json:"name"`
	UUID         uuid.UUID `json:"uuid"`
	TournamentID uuid.UUID `json:"tournament_id"`
}

func (t *Team) RecordUUID() uuid.UUID  { return t.UUID }
func (t *Team) RecordKind() EntityKind { return KindTeam }

// Participant roles
const (
	RoleSpeaker     = "speaker"
	RoleAdjudicator = "adjudicator"
)

// Participant — спикер или судья. TeamID заполнен только для спикеров.
type Participant struct {
	TeamID       *uuid.UUID `json:"team_id,omitempty"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	UUID         uuid.UUID  `json:"uuid"`
	TournamentID uuid.UUID  `json:"tournament_id"`
}

func (p *Participant) RecordUUID() uuid.UUID  { return p.UUID }
func (p *Participant) RecordKind() EntityKind { return KindParticipant }

// Round — раунд турнира. Поля *_time управляют публикацией раунда;
// их переходы транслируются подписчикам через Change Notifier.
type Round struct {
	DrawReleaseTime       *time.Time `json:"draw_release_time,omitempty"`
	TeamMotionReleaseTime *time.Time `json:"team_motion_release_time,omitempty"`
	DebateStartTime       *time.Time `json:"debate_start_time,omitempty"`
	FullMotionReleaseTime *time.Time `json:"full_motion_release_time,omitempty"`
	RoundCloseTime        *time.Time `json:"round_close_time,omitempty"`
	RoundNumber           int        `json:"round_number"`
	UUID                  uuid.UUID  `json:"uuid"`
	TournamentID          uuid.UUID  `json:"tournament_id"`
}

func (r *Round) RecordUUID() uuid.UUID  { return r.UUID }
func (r *Round) RecordKind() EntityKind { return KindRound }

// Speech — одно выступление внутри ballot.
type Speech struct {
	Speaker  *uuid.UUID `json:"speaker,omitempty"`
	Role     string     `json:"role"`
	Position int        `json:"position"`
}

// Ballot хранит состав дебатов и оценки. Government/Opposition ссылаются
// на команды, Adjudicators и President — на участников.
type Ballot struct {
	Government   *uuid.UUID  `json:"government,omitempty"`
	Opposition   *uuid.UUID  `json:"opposition,omitempty"`
	President    *uuid.UUID  `json:"president,omitempty"`
	Speeches     []Speech    `json:"speeches"`
	Adjudicators []uuid.UUID `json:"adjudicators"`
	UUID         uuid.UUID   `json:"uuid"`
	TournamentID uuid.UUID   `json:"tournament_id"`
}

func (b *Ballot) RecordUUID() uuid.UUID  { return b.UUID }
func (b *Ballot) RecordKind() EntityKind { return KindBallot }

// Debate привязывает ballot к раунду. Турнир дебатов определяется
// через раунд, прямой ссылки нет.
type Debate struct {
	VenueName string    `json:"venue_name,omitempty"`
	UUID      uuid.UUID `json:"uuid"`
	RoundID   uuid.UUID `json:"round_id"`
	BallotID  uuid.UUID `json:"ballot_id"`
}

func (d *Debate) RecordUUID() uuid.UUID  { return d.UUID }
func (d *Debate) RecordKind() EntityKind { return KindDebate }

// FeedbackForm — форма обратной связи для судей.
type FeedbackForm struct {
	Name         string    `json:"name"`
	UUID         uuid.UUID `json:"uuid"`
	TournamentID uuid.UUID `json:"tournament_id"`
}

func (f *FeedbackForm) RecordUUID() uuid.UUID  { return f.UUID }
func (f *FeedbackForm) RecordKind() EntityKind { return KindFeedbackForm }
