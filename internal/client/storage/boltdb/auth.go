package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/tabsync/internal/client/storage"
)

var keySession = []byte("session")

// SaveSession сохраняет сессию оператора
func (s *Storage) SaveSession(ctx context.Context, session *storage.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuth).Put(keySession, data)
	})
}

// GetSession возвращает сохраненную сессию или ErrNotAuthenticated
func (s *Storage) GetSession(ctx context.Context) (*storage.Session, error) {
	var session storage.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAuth).Get(keySession)
		if data == nil {
			return storage.ErrNotAuthenticated
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ClearSession удаляет сохраненную сессию
func (s *Storage) ClearSession(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAuth).Delete(keySession)
	})
}
