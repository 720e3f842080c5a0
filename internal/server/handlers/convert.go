package handlers

import (
	"fmt"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/sync"
	"github.com/iudanet/tabsync/pkg/api"
)

// toWireFatLog конвертирует внутренний FatLog в wire-формат:
// типизированные записи сериализуются в json.RawMessage по их kind.
func toWireFatLog(fat *sync.FatLog) (*api.FatLog, error) {
	wire := &api.FatLog{
		Entities: make(map[string][]api.CondensedEntry, len(fat.Entities)),
		Log:      make([]api.LogEntry, 0, len(fat.Log)),
	}

	for _, entry := range fat.Log {
		wire.Log = append(wire.Log, api.LogEntry{
			UUID:       entry.UUID,
			TargetKind: string(entry.TargetKind),
			TargetUUID: entry.TargetUUID,
			Timestamp:  entry.Timestamp,
		})
	}

	for kind, entries := range fat.Entities {
		wireEntries := make([]api.CondensedEntry, 0, len(entries))
		for _, entry := range entries {
			wireEntry := api.CondensedEntry{
				UUID:           entry.UUID,
				OldVersions:    entry.OldVersions,
				CurrentVersion: entry.CurrentVersion,
			}
			if entry.CurrentValue.Deleted() {
				wireEntry.CurrentValue = api.EntityValue{Deleted: true}
			} else {
				data, err := models.EncodeRecord(entry.CurrentValue.Record)
				if err != nil {
					return nil, fmt.Errorf("failed to encode %s/%s: %w", kind, entry.UUID, err)
				}
				wireEntry.CurrentValue = api.EntityValue{Value: data}
			}
			wireEntries = append(wireEntries, wireEntry)
		}
		wire.Entities[string(kind)] = wireEntries
	}

	return wire, nil
}

// fromWireFatLog конвертирует wire-формат во внутренний FatLog.
// Неизвестный kind или значение, не совпадающее по id со своей записью,
// отклоняются до какой-либо работы с хранилищем.
func fromWireFatLog(wire *api.FatLog) (*sync.FatLog, error) {
	fat := &sync.FatLog{
		Entities: make(map[models.EntityKind][]sync.CondensedEntry, len(wire.Entities)),
		Log:      make([]models.LogEntry, 0, len(wire.Log)),
	}

	for _, entry := range wire.Log {
		kind := models.EntityKind(entry.TargetKind)
		if !models.KnownKind(kind) {
			return nil, fmt.Errorf("unknown entity kind %q in log entry %s", entry.TargetKind, entry.UUID)
		}
		fat.Log = append(fat.Log, models.LogEntry{
			UUID:       entry.UUID,
			TargetKind: kind,
			TargetUUID: entry.TargetUUID,
			Timestamp:  entry.Timestamp,
		})
	}

	for kindStr, entries := range wire.Entities {
		kind := models.EntityKind(kindStr)
		if !models.KnownKind(kind) {
			return nil, fmt.Errorf("unknown entity kind %q", kindStr)
		}

		converted := make([]sync.CondensedEntry, 0, len(entries))
		for _, entry := range entries {
			state := models.DeletedState(kind, entry.UUID)
			if !entry.CurrentValue.Deleted {
				rec, err := models.DecodeRecord(kind, entry.CurrentValue.Value)
				if err != nil {
					return nil, fmt.Errorf("failed to decode %s/%s: %w", kind, entry.UUID, err)
				}
				if rec.RecordUUID() != entry.UUID {
					return nil, fmt.Errorf("entry %s/%s carries value with id %s", kind, entry.UUID, rec.RecordUUID())
				}
				state = models.Exists(rec)
			}
			converted = append(converted, sync.CondensedEntry{
				UUID:           entry.UUID,
				OldVersions:    entry.OldVersions,
				CurrentVersion: entry.CurrentVersion,
				CurrentValue:   state,
			})
		}
		fat.Entities[kind] = converted
	}

	return fat, nil
}
