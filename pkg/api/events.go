package api

import (
	"time"

	"github.com/google/uuid"
)

// Event types delivered over the participant event stream.
const (
	EventReleaseTimeUpdated = "release_time_updated"
	EventBallotChanged      = "ballot_changed"
)

// Release time kinds for EventReleaseTimeUpdated.
const (
	ReleaseTimeDraw           = "draw"
	ReleaseTimeMotionForTeams = "motion_for_teams"
	ReleaseTimeDebateStart    = "debate_start"
	ReleaseTimeMotionForAll   = "motion_for_all"
	ReleaseTimeRoundClose     = "round_close"
)

// Event — одно событие push-канала. Type определяет, какие поля заполнены:
// release_time_updated несет round_id/time_kind/new_time,
// ballot_changed — ballot_id.
type Event struct {
	NewTime  *time.Time `json:"new_time,omitempty"`
	RoundID  *uuid.UUID `json:"round_id,omitempty"`
	BallotID *uuid.UUID `json:"ballot_id,omitempty"`
	Type     string     `json:"type"`
	TimeKind string     `json:"time_kind,omitempty"`
}
