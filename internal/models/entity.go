package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EntityKind идентифицирует тип записи, на которую может ссылаться журнал
// турнира. Набор закрытый: новая разновидность записи добавляется здесь
// и в kindRegistry, всё остальное диспетчеризуется через таблицу.
type EntityKind string

const (
	KindTournament   EntityKind = "tournament"
	KindTeam         EntityKind = "team"
	KindParticipant  EntityKind = "participant"
	KindRound        EntityKind = "round"
	KindBallot       EntityKind = "ballot"
	KindDebate       EntityKind = "debate"
	KindFeedbackForm EntityKind = "feedback_form"
)

// Record представляет одну доменную запись, идентифицируемую парой (kind, uuid).
type Record interface {
	RecordUUID() uuid.UUID
	RecordKind() EntityKind
}

// kindInfo хранит операции для одного типа записи.
// saveOrder определяет порядок bulk-сохранения: записи с меньшим
// значением сохраняются раньше, чтобы внешние ссылки (например,
// Debate -> Round) указывали на уже сохраненные строки.
type kindInfo struct {
	decode    func(data []byte) (Record, error)
	saveOrder int
}

var kindRegistry = map[EntityKind]kindInfo{
	KindTournament:   {saveOrder: 0, decode: decodeAs[Tournament]},
	KindTeam:         {saveOrder: 1, decode: decodeAs[Team]},
	KindParticipant:  {saveOrder: 2, decode: decodeAs[Participant]},
	KindRound:        {saveOrder: 3, decode: decodeAs[Round]},
	KindBallot:       {saveOrder: 4, decode: decodeAs[Ballot]},
	KindDebate:       {saveOrder: 5, decode: decodeAs[Debate]},
	KindFeedbackForm: {saveOrder: 6, decode: decodeAs[FeedbackForm]},
}

func decodeAs[R any, PR interface {
	*R
	Record
}](data []byte) (Record, error) {
	rec := PR(new(R))
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// KnownKind сообщает, известен ли данный тип записи.
func KnownKind(kind EntityKind) bool {
	_, ok := kindRegistry[kind]
	return ok
}

// KindsInSaveOrder returns every known kind ordered so that referential
// dependencies are satisfied when saving one kind at a time.
func KindsInSaveOrder() []EntityKind {
	kinds := make([]EntityKind, len(kindRegistry))
	for kind, info := range kindRegistry {
		kinds[info.saveOrder] = kind
	}
	return kinds
}

// DecodeRecord parses a serialized payload into the typed record for kind.
func DecodeRecord(kind EntityKind, data []byte) (Record, error) {
	info, ok := kindRegistry[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	rec, err := info.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return rec, nil
}

// EncodeRecord serializes a record payload for storage or transport.
func EncodeRecord(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", rec.RecordKind(), err)
	}
	return data, nil
}

// EntityState — текущее значение пары (kind, uuid): либо существующая
// запись, либо tombstone после удаления.
type EntityState struct {
	Record Record // nil, если запись удалена
	Kind   EntityKind
	UUID   uuid.UUID
}

// Exists создает состояние для существующей записи.
func Exists(rec Record) EntityState {
	return EntityState{
		Record: rec,
		Kind:   rec.RecordKind(),
		UUID:   rec.RecordUUID(),
	}
}

// DeletedState создает tombstone для удаленной записи.
func DeletedState(kind EntityKind, id uuid.UUID) EntityState {
	return EntityState{Kind: kind, UUID: id}
}

// Deleted сообщает, является ли состояние tombstone-ом.
func (s EntityState) Deleted() bool {
	return s.Record == nil
}
