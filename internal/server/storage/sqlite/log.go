package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// AppendLogEntry appends one log row for the tournament, assigning
// sequence_idx = max + 1. If entryID is non-nil it is used as the row id,
// otherwise a fresh id is generated.
func (q *queries) AppendLogEntry(ctx context.Context, tournamentID uuid.UUID, kind models.EntityKind, targetID uuid.UUID, entryID *uuid.UUID) (*models.LogEntry, error) {
	maxIdx, err := q.MaxSequenceIdx(ctx, tournamentID)
	if err != nil {
		return nil, err
	}

	entry := models.LogEntry{
		UUID:         uuid.New(),
		TournamentID: tournamentID,
		SequenceIdx:  maxIdx + 1,
		TargetKind:   kind,
		TargetUUID:   targetID,
		Timestamp:    time.Now().UTC().Truncate(time.Second),
	}
	if entryID != nil {
		entry.UUID = *entryID
	}

	if err := q.InsertLogEntries(ctx, []models.LogEntry{entry}); err != nil {
		return nil, err
	}
	return &entry, nil
}

// InsertLogEntries вставляет уже сформированные строки журнала.
func (q *queries) InsertLogEntries(ctx context.Context, entries []models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO tournament_log (uuid, tournament_id, sequence_idx, target_kind, target_uuid, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	stmt, err := q.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, entry := range entries {
		_, err := stmt.ExecContext(ctx,
			entry.UUID.String(),
			entry.TournamentID.String(),
			entry.SequenceIdx,
			string(entry.TargetKind),
			entry.TargetUUID.String(),
			entry.Timestamp.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert log entry %s: %w", entry.UUID, err)
		}
	}

	return nil
}

// MaxSequenceIdx returns the current head sequence index for a tournament,
// or 0 when the log is empty.
func (q *queries) MaxSequenceIdx(ctx context.Context, tournamentID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(MAX(sequence_idx), 0) FROM tournament_log WHERE tournament_id = ?`

	var maxIdx int64
	if err := q.db.QueryRowContext(ctx, query, tournamentID.String()).Scan(&maxIdx); err != nil {
		return 0, fmt.Errorf("failed to get max sequence idx: %w", err)
	}
	return maxIdx, nil
}

// LogSince returns log entries with sequence_idx strictly greater than the
// cursor's, ordered ascending. A nil cursor returns the whole log.
// Returns ErrUnknownCursor if since does not name a log entry of this
// tournament.
func (q *queries) LogSince(ctx context.Context, tournamentID uuid.UUID, since *uuid.UUID) ([]models.LogEntry, error) {
	var afterIdx int64

	if since != nil {
		query := `SELECT sequence_idx FROM tournament_log WHERE uuid = ? AND tournament_id = ?`
		err := q.db.QueryRowContext(ctx, query, since.String(), tournamentID.String()).Scan(&afterIdx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUnknownCursor
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cursor: %w", err)
		}
	}

	query := `
		SELECT uuid, tournament_id, sequence_idx, target_kind, target_uuid, timestamp
		FROM tournament_log
		WHERE tournament_id = ? AND sequence_idx > ?
		ORDER BY sequence_idx ASC
	`

	rows, err := q.db.QueryContext(ctx, query, tournamentID.String(), afterIdx)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanLogEntries(rows)
}

// LogHead returns the most recent log entry for a tournament, or nil when
// the log is empty. The head's uuid doubles as the cache version token.
func (q *queries) LogHead(ctx context.Context, tournamentID uuid.UUID) (*models.LogEntry, error) {
	query := `
		SELECT uuid, tournament_id, sequence_idx, target_kind, target_uuid, timestamp
		FROM tournament_log
		WHERE tournament_id = ?
		ORDER BY sequence_idx DESC
		LIMIT 1
	`

	entry, err := scanLogEntry(q.db.QueryRowContext(ctx, query, tournamentID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get log head: %w", err)
	}
	return entry, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogEntry(row rowScanner) (*models.LogEntry, error) {
	var entry models.LogEntry
	var entryID, tournamentID, targetID, targetKind string
	var timestamp int64

	err := row.Scan(&entryID, &tournamentID, &entry.SequenceIdx, &targetKind, &targetID, &timestamp)
	if err != nil {
		return nil, err
	}

	entry.UUID, err = uuid.Parse(entryID)
	if err != nil {
		return nil, fmt.Errorf("invalid log entry uuid: %w", err)
	}
	entry.TournamentID, err = uuid.Parse(tournamentID)
	if err != nil {
		return nil, fmt.Errorf("invalid tournament uuid: %w", err)
	}
	entry.TargetUUID, err = uuid.Parse(targetID)
	if err != nil {
		return nil, fmt.Errorf("invalid target uuid: %w", err)
	}
	entry.TargetKind = models.EntityKind(targetKind)
	entry.Timestamp = time.Unix(timestamp, 0).UTC()

	return &entry, nil
}

func scanLogEntries(rows *sql.Rows) ([]models.LogEntry, error) {
	var entries []models.LogEntry

	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}
