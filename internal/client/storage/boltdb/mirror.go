package boltdb

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

// Ключ зеркала: "kind/uuid" внутри bucket-а турнира. Kind не содержит
// слэшей, так что формат однозначен.
func entityKey(kind string, id uuid.UUID) []byte {
	return []byte(kind + "/" + id.String())
}

// Cursor возвращает id последней влитой строки журнала турнира
func (s *Storage) Cursor(ctx context.Context, tournamentID uuid.UUID) (*uuid.UUID, error) {
	var cursor *uuid.UUID
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketCursors).Get(tournamentID[:])
		if data == nil {
			return nil
		}
		parsed, err := uuid.FromBytes(data)
		if err != nil {
			return fmt.Errorf("corrupt cursor for %s: %w", tournamentID, err)
		}
		cursor = &parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// SetCursor сохраняет id последней влитой строки журнала
func (s *Storage) SetCursor(ctx context.Context, tournamentID, head uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Put(tournamentID[:], head[:])
	})
}

// Cursors возвращает курсоры всех известных турниров
func (s *Storage) Cursors(ctx context.Context) (map[uuid.UUID]uuid.UUID, error) {
	cursors := make(map[uuid.UUID]uuid.UUID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).ForEach(func(k, v []byte) error {
			tid, err := uuid.FromBytes(k)
			if err != nil {
				return fmt.Errorf("corrupt cursor key: %w", err)
			}
			head, err := uuid.FromBytes(v)
			if err != nil {
				return fmt.Errorf("corrupt cursor for %s: %w", tid, err)
			}
			cursors[tid] = head
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return cursors, nil
}

// SaveEntity сохраняет текущее значение записи в зеркале
func (s *Storage) SaveEntity(ctx context.Context, tournamentID uuid.UUID, kind string, id uuid.UUID, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketEntities).CreateBucketIfNotExists(tournamentID[:])
		if err != nil {
			return fmt.Errorf("failed to create tournament bucket: %w", err)
		}
		return b.Put(entityKey(kind, id), value)
	})
}

// DeleteEntity удаляет запись из зеркала (tombstone с сервера)
func (s *Storage) DeleteEntity(ctx context.Context, tournamentID uuid.UUID, kind string, id uuid.UUID) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntities).Bucket(tournamentID[:])
		if b == nil {
			return nil
		}
		return b.Delete(entityKey(kind, id))
	})
}

// EntityCounts возвращает число записей зеркала по типам
func (s *Storage) EntityCounts(ctx context.Context, tournamentID uuid.UUID) (map[string]int, error) {
	counts := make(map[string]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEntities).Bucket(tournamentID[:])
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			idx := bytes.IndexByte(k, '/')
			if idx < 0 {
				return fmt.Errorf("corrupt entity key %q", k)
			}
			counts[string(k[:idx])]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
