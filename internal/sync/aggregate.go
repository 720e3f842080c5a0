package sync

import (
	"context"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// ChangesSince строит FatLog: срез журнала после курсора since, сжатый
// до одной записи на затронутую пару (kind, uuid). Текущие значения
// читаются из хранилища на момент вызова (одним bulk-запросом на тип),
// а не восстанавливаются реплеем — промежуточные состояния никому не
// нужны. Отсутствующая в хранилище запись отдается как tombstone.
func ChangesSince(ctx context.Context, q storage.Querier, tournamentID uuid.UUID, since *uuid.UUID) (*FatLog, error) {
	log, err := q.LogSince(ctx, tournamentID, since)
	if err != nil {
		return nil, err
	}

	// Группируем по (kind, uuid); журнал упорядочен, поэтому последний
	// элемент каждой группы — актуальная версия.
	groups := make(map[models.EntityRef][]models.LogEntry)
	var order []models.EntityRef
	for _, entry := range log {
		ref := entry.Ref()
		if _, ok := groups[ref]; !ok {
			order = append(order, ref)
		}
		groups[ref] = append(groups[ref], entry)
	}

	byKind := make(map[models.EntityKind][]models.EntityRef)
	for _, ref := range order {
		byKind[ref.Kind] = append(byKind[ref.Kind], ref)
	}

	fat := &FatLog{
		Log:      log,
		Entities: make(map[models.EntityKind][]CondensedEntry, len(byKind)),
	}

	for kind, refs := range byKind {
		ids := make([]uuid.UUID, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.UUID)
		}

		recs, err := q.LoadRecords(ctx, kind, ids)
		if err != nil {
			return nil, err
		}

		entries := make([]CondensedEntry, 0, len(refs))
		for _, ref := range refs {
			versions := groups[ref]
			latest := versions[len(versions)-1]

			entry := CondensedEntry{
				UUID:           ref.UUID,
				CurrentVersion: latest.UUID,
				OldVersions:    make([]uuid.UUID, 0, len(versions)-1),
			}
			for _, superseded := range versions[:len(versions)-1] {
				entry.OldVersions = append(entry.OldVersions, superseded.UUID)
			}

			if rec, ok := recs[ref.UUID]; ok {
				entry.CurrentValue = models.Exists(rec)
			} else {
				entry.CurrentValue = models.DeletedState(kind, ref.UUID)
			}

			entries = append(entries, entry)
		}

		fat.Entities[kind] = entries
	}

	return fat, nil
}
