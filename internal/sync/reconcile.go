package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// Reconcile вливает чужой FatLog в авторитетный журнал турнира.
//
// Алгоритм:
//  1. Берется локальный срез журнала после lastCommonAncestor.
//  2. Пустой чужой журнал без предка — StatusAmbiguousAncestor.
//  3. Непустой локальный срез при стратегии reject — StatusRejected.
//  4. Чужие строки получают новые sequence_idx, продолжающие локальную
//     голову, и дописываются в журнал; уже известные строки пропускаются.
//  5. Для записей, измененных с обеих сторон, дописывается еще одна
//     синтетическая строка с текущим локальным значением: локальное
//     всегда побеждает, но победа явно видна в журнале, и все пиры
//     сходятся к одному результату при следующем fetch.
//  6. Неконфликтующие чужие значения сохраняются одним батчем.
//  7. Новым общим предком становится последняя принятая чужая строка.
//
// Вся последовательность обязана выполняться внутри одной транзакции:
// q должен быть транзакционным Querier.
func Reconcile(
	ctx context.Context,
	q storage.Querier,
	tournamentID uuid.UUID,
	remote *FatLog,
	lastCommonAncestor *uuid.UUID,
	strategy MergeStrategy,
	returnBatch bool,
) (*Outcome, error) {
	localLog, err := q.LogSince(ctx, tournamentID, lastCommonAncestor)
	if err != nil {
		return nil, err
	}

	// Без общего предка и без чужих строк невозможно назвать новую
	// общую точку — запрос некорректен.
	if lastCommonAncestor == nil && len(remote.Log) == 0 {
		return &Outcome{Status: StatusAmbiguousAncestor}, nil
	}

	if len(remote.Log) == 0 {
		// Нечего вливать, предок остается прежним.
		return &Outcome{Status: StatusSuccess, NewLastCommonAncestor: *lastCommonAncestor}, nil
	}

	if len(localLog) > 0 && strategy == MergeReject {
		return &Outcome{Status: StatusRejected}, nil
	}

	headIdx, err := headSequenceIdx(ctx, q, tournamentID, localLog)
	if err != nil {
		return nil, err
	}

	// Строки, уже присутствующие в локальном срезе, не дублируем:
	// повторный push того же FatLog-а идемпотентен.
	existing := make(map[uuid.UUID]bool, len(localLog))
	for _, entry := range localLog {
		existing[entry.UUID] = true
	}

	var newEntries []models.LogEntry
	for _, entry := range remote.Log {
		if existing[entry.UUID] {
			continue
		}
		headIdx++
		newEntries = append(newEntries, models.LogEntry{
			UUID:         entry.UUID,
			TournamentID: tournamentID,
			SequenceIdx:  headIdx,
			TargetKind:   entry.TargetKind,
			TargetUUID:   entry.TargetUUID,
			Timestamp:    entry.Timestamp,
		})
	}

	if len(newEntries) == 0 {
		// Всё уже влито ранее; предок — последняя чужая строка.
		outcome := &Outcome{
			Status:                StatusSuccess,
			NewLastCommonAncestor: remote.Log[len(remote.Log)-1].UUID,
		}
		if returnBatch {
			outcome.Batch = batch.New()
		}
		return outcome, nil
	}

	newAncestor := newEntries[len(newEntries)-1].UUID

	conflicts := conflictSet(localLog, remote)

	// Синтетические строки конфликтов идут после чужих: локальное
	// значение — более новая, явная мутация.
	now := time.Now().UTC().Truncate(time.Second)
	for _, ref := range conflicts {
		headIdx++
		newEntries = append(newEntries, models.LogEntry{
			UUID:         uuid.New(),
			TournamentID: tournamentID,
			SequenceIdx:  headIdx,
			TargetKind:   ref.Kind,
			TargetUUID:   ref.UUID,
			Timestamp:    now,
		})
	}

	if err := q.InsertLogEntries(ctx, newEntries); err != nil {
		return nil, err
	}

	group, err := buildBatch(remote, conflicts)
	if err != nil {
		return nil, err
	}

	if err := group.SaveAll(ctx, q); err != nil {
		return nil, err
	}

	if err := checkTournament(ctx, q, tournamentID, group); err != nil {
		return nil, err
	}

	if err := q.UpsertRegistryRows(ctx, group.RegistryRows(tournamentID)); err != nil {
		return nil, err
	}

	if err := q.TouchTournament(ctx, tournamentID, now); err != nil {
		return nil, err
	}

	outcome := &Outcome{Status: StatusSuccess, NewLastCommonAncestor: newAncestor}
	if returnBatch {
		outcome.Batch = group
	}
	return outcome, nil
}

// headSequenceIdx возвращает sequence_idx локальной головы. Срез журнала
// уже упорядочен, отдельный запрос нужен только когда срез пуст.
func headSequenceIdx(ctx context.Context, q storage.Querier, tournamentID uuid.UUID, localLog []models.LogEntry) (int64, error) {
	if len(localLog) > 0 {
		return localLog[len(localLog)-1].SequenceIdx, nil
	}
	return q.MaxSequenceIdx(ctx, tournamentID)
}

// conflictSet возвращает пары (kind, uuid), измененные с обеих сторон
// после общего предка, в детерминированном порядке.
func conflictSet(localLog []models.LogEntry, remote *FatLog) []models.EntityRef {
	local := make(map[models.EntityRef]bool, len(localLog))
	for _, entry := range localLog {
		local[entry.Ref()] = true
	}

	seen := make(map[models.EntityRef]bool)
	var conflicts []models.EntityRef
	for kind, entries := range remote.Entities {
		for _, entry := range entries {
			ref := models.EntityRef{Kind: kind, UUID: entry.UUID}
			if local[ref] && !seen[ref] {
				seen[ref] = true
				conflicts = append(conflicts, ref)
			}
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		if conflicts[i].Kind != conflicts[j].Kind {
			return conflicts[i].Kind < conflicts[j].Kind
		}
		return conflicts[i].UUID.String() < conflicts[j].UUID.String()
	})

	return conflicts
}

// buildBatch собирает батч из чужих значений, не попавших в конфликтный
// набор: конфликтующие записи остаются нетронутыми локально.
func buildBatch(remote *FatLog, conflicts []models.EntityRef) (*batch.Batch, error) {
	conflicting := make(map[models.EntityRef]bool, len(conflicts))
	for _, ref := range conflicts {
		conflicting[ref] = true
	}

	group := batch.New()
	for _, kind := range models.KindsInSaveOrder() {
		for _, entry := range remote.Entities[kind] {
			ref := models.EntityRef{Kind: kind, UUID: entry.UUID}
			if conflicting[ref] {
				continue
			}

			state := entry.CurrentValue
			if state.Deleted() {
				group.DeleteVersioned(kind, entry.UUID, entry.CurrentVersion)
				continue
			}
			if state.Kind != kind || state.UUID != entry.UUID {
				return nil, fmt.Errorf("condensed entry %s/%s carries mismatched value %s/%s",
					kind, entry.UUID, state.Kind, state.UUID)
			}
			group.AddVersioned(state.Record, entry.CurrentVersion)
		}
	}

	return group, nil
}

// checkTournament отклоняет батч, затрагивающий чужой турнир: и по
// существующим строкам реестра, и по внешним ссылкам самих записей.
func checkTournament(ctx context.Context, q storage.Querier, tournamentID uuid.UUID, group *batch.Batch) error {
	refs := group.EntityRefs()
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.UUID)
	}

	rows, err := q.RegistryRows(ctx, ids)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.TournamentID != tournamentID {
			return fmt.Errorf("entity %s belongs to tournament %s: %w", row.UUID, row.TournamentID, ErrCrossTournament)
		}
	}

	resolved, err := group.Tournaments(ctx, q)
	if err != nil {
		return err
	}
	for ref, tid := range resolved {
		if tid != tournamentID {
			return fmt.Errorf("entity %s/%s references tournament %s: %w", ref.Kind, ref.UUID, tid, ErrCrossTournament)
		}
	}

	return nil
}
