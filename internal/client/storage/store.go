// Package storage определяет интерфейсы локального клиентского хранилища.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotAuthenticated возвращается когда локальная сессия отсутствует.
var ErrNotAuthenticated = errors.New("not authenticated, run login first")

// Session — сохраненная локально сессия оператора.
type Session struct {
	Username    string `json:"username"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

// AuthStore хранит сессию между запусками клиента.
type AuthStore interface {
	SaveSession(ctx context.Context, session *Session) error
	// GetSession возвращает ErrNotAuthenticated, если сессии нет.
	GetSession(ctx context.Context) (*Session, error)
	ClearSession(ctx context.Context) error
}

// MirrorStore хранит локальное зеркало турниров: курсор последней
// влитой строки журнала и текущие значения записей в wire-формате.
type MirrorStore interface {
	// Cursor возвращает nil, если турнир еще не выкачивался.
	Cursor(ctx context.Context, tournamentID uuid.UUID) (*uuid.UUID, error)
	SetCursor(ctx context.Context, tournamentID, head uuid.UUID) error
	// Cursors возвращает курсоры всех известных турниров.
	Cursors(ctx context.Context) (map[uuid.UUID]uuid.UUID, error)

	SaveEntity(ctx context.Context, tournamentID uuid.UUID, kind string, id uuid.UUID, value []byte) error
	DeleteEntity(ctx context.Context, tournamentID uuid.UUID, kind string, id uuid.UUID) error
	// EntityCounts возвращает число записей зеркала по типам.
	EntityCounts(ctx context.Context, tournamentID uuid.UUID) (map[string]int, error)
}

// Store — полное клиентское хранилище.
type Store interface {
	AuthStore
	MirrorStore

	Close() error
}
