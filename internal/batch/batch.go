// Package batch реализует типизированный контейнер изменений: набор
// записей с порядком вставки и опционально закрепленными id версий.
// Батч — единица сохранения: все содержимое пишется одной операцией
// на тип записи в порядке, удовлетворяющем внешние ссылки.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// ErrUnknownReference indicates that an entity references a foreign id
// that exists neither in the batch nor in the store. Always fatal: the
// batch is malformed, retrying will not help.
var ErrUnknownReference = errors.New("unknown foreign reference")

// op — одна операция батча. version закреплена только при реплее чужого
// журнала; для локальных изменений id версии генерирует журнал.
type op struct {
	state   models.EntityState
	version uuid.UUID
	pinned  bool
}

// Batch holds zero or more records of each known kind plus their
// insertion order. The last operation for a (kind, uuid) pair wins when
// the batch is persisted; the log still records every operation.
type Batch struct {
	index map[models.EntityRef]int
	ops   []op
}

// New creates an empty batch.
func New() *Batch {
	return &Batch{index: make(map[models.EntityRef]int)}
}

// Add records a new version of an entity.
func (b *Batch) Add(rec models.Record) {
	b.push(op{state: models.Exists(rec)})
}

// AddVersioned records a new version of an entity with a pinned log entry
// id, so ids stay stable when replaying a peer's log.
func (b *Batch) AddVersioned(rec models.Record, version uuid.UUID) {
	b.push(op{state: models.Exists(rec), version: version, pinned: true})
}

// Delete records the deletion of an entity.
func (b *Batch) Delete(kind models.EntityKind, id uuid.UUID) {
	b.push(op{state: models.DeletedState(kind, id)})
}

// DeleteVersioned records the deletion of an entity with a pinned log
// entry id.
func (b *Batch) DeleteVersioned(kind models.EntityKind, id uuid.UUID, version uuid.UUID) {
	b.push(op{state: models.DeletedState(kind, id), version: version, pinned: true})
}

func (b *Batch) push(o op) {
	b.ops = append(b.ops, o)
	b.index[models.EntityRef{Kind: o.state.Kind, UUID: o.state.UUID}] = len(b.ops) - 1
}

// Len возвращает число операций в батче.
func (b *Batch) Len() int {
	return len(b.ops)
}

// EntityRefs returns every distinct (kind, uuid) pair in first-insertion
// order.
func (b *Batch) EntityRefs() []models.EntityRef {
	seen := make(map[models.EntityRef]bool, len(b.ops))
	refs := make([]models.EntityRef, 0, len(b.ops))
	for _, o := range b.ops {
		ref := models.EntityRef{Kind: o.state.Kind, UUID: o.state.UUID}
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

// State returns the effective (last recorded) state for a (kind, uuid)
// pair.
func (b *Batch) State(ref models.EntityRef) (models.EntityState, bool) {
	idx, ok := b.index[ref]
	if !ok {
		return models.EntityState{}, false
	}
	return b.ops[idx].state, true
}

// RecordsOfKind returns the effective existing records of one kind in
// first-insertion order. Deleted entities are not included.
func (b *Batch) RecordsOfKind(kind models.EntityKind) []models.Record {
	var recs []models.Record
	for _, ref := range b.EntityRefs() {
		if ref.Kind != kind {
			continue
		}
		state := b.ops[b.index[ref]].state
		if !state.Deleted() {
			recs = append(recs, state.Record)
		}
	}
	return recs
}

// SaveAll persists the effective state of every contained entity: one
// bulk save (or delete) per kind, kinds ordered so that referential
// dependencies are satisfied.
func (b *Batch) SaveAll(ctx context.Context, q storage.Querier) error {
	byKind := make(map[models.EntityKind][]models.EntityRef)
	for _, ref := range b.EntityRefs() {
		byKind[ref.Kind] = append(byKind[ref.Kind], ref)
	}

	for _, kind := range models.KindsInSaveOrder() {
		var toSave []models.Record
		var toDelete []uuid.UUID

		for _, ref := range byKind[kind] {
			state := b.ops[b.index[ref]].state
			if state.Deleted() {
				toDelete = append(toDelete, ref.UUID)
			} else {
				toSave = append(toSave, state.Record)
			}
		}

		if err := q.SaveRecords(ctx, kind, toSave); err != nil {
			return fmt.Errorf("failed to save %s records: %w", kind, err)
		}
		if err := q.DeleteRecords(ctx, kind, toDelete); err != nil {
			return fmt.Errorf("failed to delete %s records: %w", kind, err)
		}
	}

	return nil
}

// Tournaments resolves, for every contained entity, which tournament it
// belongs to by following its foreign references. Deletions are resolved
// through the entity registry; a deletion of an id the store never saw is
// skipped (it becomes a plain tombstone). A reference to an unknown round
// is ErrUnknownReference.
func (b *Batch) Tournaments(ctx context.Context, q storage.Querier) (map[models.EntityRef]uuid.UUID, error) {
	result := make(map[models.EntityRef]uuid.UUID, len(b.index))

	var deleted []uuid.UUID
	for _, ref := range b.EntityRefs() {
		state := b.ops[b.index[ref]].state

		if state.Deleted() {
			deleted = append(deleted, ref.UUID)
			continue
		}

		switch rec := state.Record.(type) {
		case *models.Tournament:
			result[ref] = rec.UUID
		case *models.Team:
			result[ref] = rec.TournamentID
		case *models.Participant:
			result[ref] = rec.TournamentID
		case *models.Round:
			result[ref] = rec.TournamentID
		case *models.Ballot:
			result[ref] = rec.TournamentID
		case *models.FeedbackForm:
			result[ref] = rec.TournamentID
		case *models.Debate:
			tid, err := b.resolveDebateTournament(ctx, q, rec)
			if err != nil {
				return nil, err
			}
			result[ref] = tid
		default:
			return nil, fmt.Errorf("cannot resolve tournament for kind %q", ref.Kind)
		}
	}

	if len(deleted) > 0 {
		rows, err := q.RegistryRows(ctx, deleted)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			result[models.EntityRef{Kind: row.Kind, UUID: row.UUID}] = row.TournamentID
		}
	}

	return result, nil
}

// resolveDebateTournament следует по ссылке Debate -> Round. Раунд
// ищется сначала в самом батче (он может сохраняться той же пачкой),
// затем в хранилище.
func (b *Batch) resolveDebateTournament(ctx context.Context, q storage.Querier, debate *models.Debate) (uuid.UUID, error) {
	if state, ok := b.State(models.EntityRef{Kind: models.KindRound, UUID: debate.RoundID}); ok && !state.Deleted() {
		return state.Record.(*models.Round).TournamentID, nil
	}

	rounds, err := q.LoadRecords(ctx, models.KindRound, []uuid.UUID{debate.RoundID})
	if err != nil {
		return uuid.Nil, err
	}

	rec, ok := rounds[debate.RoundID]
	if !ok {
		return uuid.Nil, fmt.Errorf("debate %s references round %s: %w", debate.UUID, debate.RoundID, ErrUnknownReference)
	}
	return rec.(*models.Round).TournamentID, nil
}

// RegistryRows returns the registry rows the batch's effective state
// implies, all attributed to the given tournament.
func (b *Batch) RegistryRows(tournamentID uuid.UUID) []storage.RegistryRow {
	refs := b.EntityRefs()
	rows := make([]storage.RegistryRow, 0, len(refs))
	for _, ref := range refs {
		state := b.ops[b.index[ref]].state
		rows = append(rows, storage.RegistryRow{
			Kind:         ref.Kind,
			UUID:         ref.UUID,
			TournamentID: tournamentID,
			IsDeleted:    state.Deleted(),
		})
	}
	return rows
}

// SaveAllAndLog — путь локального коммита: сохраняет батч, обновляет
// реестр и дописывает в журнал по одной строке на операцию (в порядке
// вставки). Возвращает последнюю добавленную строку — новую голову
// журнала.
func (b *Batch) SaveAllAndLog(ctx context.Context, q storage.Querier, tournamentID uuid.UUID) (*models.LogEntry, error) {
	if len(b.ops) == 0 {
		return nil, errors.New("cannot log an empty batch")
	}

	if err := b.SaveAll(ctx, q); err != nil {
		return nil, err
	}
	if err := q.UpsertRegistryRows(ctx, b.RegistryRows(tournamentID)); err != nil {
		return nil, err
	}

	maxIdx, err := q.MaxSequenceIdx(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	entries := make([]models.LogEntry, 0, len(b.ops))
	for i, o := range b.ops {
		entry := models.LogEntry{
			UUID:         uuid.New(),
			TournamentID: tournamentID,
			SequenceIdx:  maxIdx + int64(i) + 1,
			TargetKind:   o.state.Kind,
			TargetUUID:   o.state.UUID,
			Timestamp:    now,
		}
		if o.pinned {
			entry.UUID = o.version
		}
		entries = append(entries, entry)
	}

	if err := q.InsertLogEntries(ctx, entries); err != nil {
		return nil, err
	}

	head := entries[len(entries)-1]
	return &head, nil
}
