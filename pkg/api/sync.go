package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LogEntry — одна строка журнала в wire-формате.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	TargetKind string    `json:"target_kind"`
	UUID       uuid.UUID `json:"uuid"`
	TargetUUID uuid.UUID `json:"target_uuid"`
}

// EntityValue — текущее значение записи либо tombstone.
// Value декодируется получателем по kind соответствующей CondensedEntry.
type EntityValue struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// CondensedEntry описывает одну затронутую запись: через какие версии
// она прошла и каково ее текущее значение.
type CondensedEntry struct {
	UUID           uuid.UUID   `json:"uuid"`
	OldVersions    []uuid.UUID `json:"old_versions"`
	CurrentVersion uuid.UUID   `json:"current_version"`
	CurrentValue   EntityValue `json:"current_value"`
}

// FatLog — единица обмена между пирами: плоский упорядоченный журнал
// плюс сжатые текущие значения по каждому затронутому (kind, uuid).
type FatLog struct {
	Entities map[string][]CondensedEntry `json:"entities"`
	Log      []LogEntry                  `json:"log"`
}

// CreateTournamentRequest представляет запрос на создание турнира.
type CreateTournamentRequest struct {
	Name string `json:"name"`
}

// CreateTournamentResponse возвращает голову журнала после создания.
type CreateTournamentResponse struct {
	TournamentID uuid.UUID `json:"tournament_id"`
	LogHead      uuid.UUID `json:"log_head"`
}

// SyncRequest представляет push изменений от клиента
type SyncRequest struct {
	LastCommonAncestor *uuid.UUID `json:"last_common_ancestor,omitempty"`
	Log                FatLog     `json:"log"`
}

// Sync outcome values
const (
	OutcomeSuccess           = "success"
	OutcomeRejected          = "rejected"
	OutcomeAmbiguousAncestor = "ambiguous_ancestor"
)

// SyncResponse представляет ответ сервера на push
type SyncResponse struct {
	NewLastCommonAncestor *uuid.UUID `json:"new_last_common_ancestor,omitempty"`
	Outcome               string     `json:"outcome"`
}
