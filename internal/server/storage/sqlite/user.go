package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// CreateUser creates a new user in the storage
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (uuid, username, access_key_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.UUID.String(),
		user.Username,
		user.AccessKeyHash,
		user.CreatedAt.Unix(),
	)

	if err != nil {
		// Проверяем на duplicate username
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return storage.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// GetUserByUsername retrieves user by username
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT uuid, username, access_key_hash, created_at
		FROM users
		WHERE username = ?
	`

	user := &models.User{}
	var idStr string
	var createdAt int64

	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&idStr,
		&user.Username,
		&user.AccessKeyHash,
		&createdAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.UUID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid user uuid: %w", err)
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()

	return user, nil
}

// GrantTournament выдает пользователю право администрирования турнира.
func (s *Storage) GrantTournament(ctx context.Context, userID, tournamentID uuid.UUID) error {
	query := `
		INSERT INTO user_tournaments (user_uuid, tournament_uuid)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`

	if _, err := s.db.ExecContext(ctx, query, userID.String(), tournamentID.String()); err != nil {
		return fmt.Errorf("failed to grant tournament: %w", err)
	}

	return nil
}

// IsAuthorized проверяет право администрирования турнира.
func (s *Storage) IsAuthorized(ctx context.Context, userID, tournamentID uuid.UUID) (bool, error) {
	query := `SELECT COUNT(*) FROM user_tournaments WHERE user_uuid = ? AND tournament_uuid = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID.String(), tournamentID.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check authorization: %w", err)
	}

	return count > 0, nil
}
