package models

import (
	"time"

	"github.com/google/uuid"
)

// LogEntry — одна строка журнала турнира. UUID идентифицирует версию
// конкретной мутации, а не саму запись: одна и та же запись появляется
// в журнале многократно. SequenceIdx строго возрастает в пределах
// турнира и никогда не переиспользуется.
type LogEntry struct {
	Timestamp    time.Time  `json:"timestamp"`
	TargetKind   EntityKind `json:"target_kind"`
	UUID         uuid.UUID  `json:"uuid"`
	TournamentID uuid.UUID  `json:"tournament_id"`
	TargetUUID   uuid.UUID  `json:"target_uuid"`
	SequenceIdx  int64      `json:"sequence_idx"`
}

// EntityRef — пара (kind, uuid), ключ записи в журнале и в батчах.
type EntityRef struct {
	Kind EntityKind
	UUID uuid.UUID
}

// Ref возвращает ссылку на запись, которую изменила эта строка журнала.
func (e *LogEntry) Ref() EntityRef {
	return EntityRef{Kind: e.TargetKind, UUID: e.TargetUUID}
}
