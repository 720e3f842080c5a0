package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// tableSpec описывает хранение одного типа записи: имя таблицы и
// извлечение денормализованных колонок из payload-а. Таблица строится
// один раз при загрузке пакета — никакой рефлексии на горячем пути.
type tableSpec struct {
	tournamentID func(models.Record) *uuid.UUID
	teamID       func(models.Record) *uuid.UUID // только для participants
	table        string
}

var tables = map[models.EntityKind]tableSpec{
	models.KindTournament: {
		table: "tournaments",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.Tournament).UUID
			return &id
		},
	},
	models.KindTeam: {
		table: "teams",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.Team).TournamentID
			return &id
		},
	},
	models.KindParticipant: {
		table: "participants",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.Participant).TournamentID
			return &id
		},
		teamID: func(r models.Record) *uuid.UUID {
			return r.(*models.Participant).TeamID
		},
	},
	models.KindRound: {
		table: "rounds",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.Round).TournamentID
			return &id
		},
	},
	models.KindBallot: {
		table: "ballots",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.Ballot).TournamentID
			return &id
		},
	},
	models.KindDebate: {
		// Турнир дебатов определяется через раунд, прямой колонки нет.
		table:        "debates",
		tournamentID: func(models.Record) *uuid.UUID { return nil },
	},
	models.KindFeedbackForm: {
		table: "feedback_forms",
		tournamentID: func(r models.Record) *uuid.UUID {
			id := r.(*models.FeedbackForm).TournamentID
			return &id
		},
	},
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// SaveRecords сохраняет записи одного типа одной bulk-операцией
// (upsert по uuid).
func (q *queries) SaveRecords(ctx context.Context, kind models.EntityKind, recs []models.Record) error {
	if len(recs) == 0 {
		return nil
	}

	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (uuid, tournament_id, data)
		VALUES (?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET tournament_id = excluded.tournament_id, data = excluded.data
	`, spec.table)
	if spec.teamID != nil {
		query = fmt.Sprintf(`
			INSERT INTO %s (uuid, tournament_id, team_id, data)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(uuid) DO UPDATE SET tournament_id = excluded.tournament_id, team_id = excluded.team_id, data = excluded.data
		`, spec.table)
	}

	stmt, err := q.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare %s upsert: %w", spec.table, err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range recs {
		data, err := models.EncodeRecord(rec)
		if err != nil {
			return err
		}

		args := []any{rec.RecordUUID().String(), uuidOrNil(spec.tournamentID(rec))}
		if spec.teamID != nil {
			args = append(args, uuidOrNil(spec.teamID(rec)))
		}
		args = append(args, string(data))

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to upsert %s %s: %w", kind, rec.RecordUUID(), err)
		}
	}

	return nil
}

// LoadRecords загружает текущие значения записей по id. Отсутствующие id
// в результат не попадают — вызывающая сторона интерпретирует их как
// tombstone через реестр.
func (q *queries) LoadRecords(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]models.Record, error) {
	result := make(map[uuid.UUID]models.Record, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	spec, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}

	query := fmt.Sprintf(`SELECT uuid, data FROM %s WHERE uuid IN (%s)`, spec.table, placeholders(len(ids)))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", spec.table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var idStr, data string
		if err := rows.Scan(&idStr, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", spec.table, err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s uuid: %w", kind, err)
		}

		rec, err := models.DecodeRecord(kind, []byte(data))
		if err != nil {
			return nil, err
		}
		result[id] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// DeleteRecords удаляет payload-строки. Tombstone остается в реестре.
func (q *queries) DeleteRecords(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	spec, ok := tables[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE uuid IN (%s)`, spec.table, placeholders(len(ids)))
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", spec.table, err)
	}

	return nil
}

// UpsertRegistryRows создает или обновляет строки реестра tournament_entities.
func (q *queries) UpsertRegistryRows(ctx context.Context, rows []storage.RegistryRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `
		INSERT INTO tournament_entities (uuid, kind, tournament_id, is_deleted)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET is_deleted = excluded.is_deleted
	`

	stmt, err := q.db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare registry upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.UUID.String(),
			string(row.Kind),
			row.TournamentID.String(),
			boolToInt(row.IsDeleted),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert registry row %s: %w", row.UUID, err)
		}
	}

	return nil
}

// RegistryRows возвращает существующие строки реестра по id записей.
func (q *queries) RegistryRows(ctx context.Context, ids []uuid.UUID) ([]storage.RegistryRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id.String())
	}

	query := fmt.Sprintf(`
		SELECT uuid, kind, tournament_id, is_deleted
		FROM tournament_entities
		WHERE uuid IN (%s)
	`, placeholders(len(ids)))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []storage.RegistryRow
	for rows.Next() {
		var idStr, kind, tournamentID string
		var isDeleted int
		if err := rows.Scan(&idStr, &kind, &tournamentID, &isDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan registry row: %w", err)
		}

		row := storage.RegistryRow{
			Kind:      models.EntityKind(kind),
			IsDeleted: intToBool(isDeleted),
		}
		if row.UUID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("invalid registry uuid: %w", err)
		}
		if row.TournamentID, err = uuid.Parse(tournamentID); err != nil {
			return nil, fmt.Errorf("invalid registry tournament uuid: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// TournamentExists проверяет, что турнир существует.
func (q *queries) TournamentExists(ctx context.Context, tournamentID uuid.UUID) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM tournaments WHERE uuid = ?`
	if err := q.db.QueryRowContext(ctx, query, tournamentID.String()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check tournament: %w", err)
	}
	return count > 0, nil
}

// TouchTournament обновляет last_modified турнира.
func (q *queries) TouchTournament(ctx context.Context, tournamentID uuid.UUID, at time.Time) error {
	recs, err := q.LoadRecords(ctx, models.KindTournament, []uuid.UUID{tournamentID})
	if err != nil {
		return err
	}

	rec, ok := recs[tournamentID]
	if !ok {
		return storage.ErrTournamentNotFound
	}

	tournament := rec.(*models.Tournament)
	tournament.LastModified = at

	return q.SaveRecords(ctx, models.KindTournament, []models.Record{tournament})
}

// TournamentRounds возвращает все раунды турнира.
func (q *queries) TournamentRounds(ctx context.Context, tournamentID uuid.UUID) ([]*models.Round, error) {
	query := `SELECT data FROM rounds WHERE tournament_id = ?`

	rows, err := q.db.QueryContext(ctx, query, tournamentID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var rounds []*models.Round
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		rec, err := models.DecodeRecord(models.KindRound, []byte(data))
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, rec.(*models.Round))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rounds, nil
}

// TeamMembers возвращает спикеров перечисленных команд.
func (q *queries) TeamMembers(ctx context.Context, teamIDs []uuid.UUID) ([]*models.Participant, error) {
	if len(teamIDs) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(teamIDs))
	for _, id := range teamIDs {
		args = append(args, id.String())
	}

	query := fmt.Sprintf(`SELECT data FROM participants WHERE team_id IN (%s)`, placeholders(len(teamIDs)))

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query team members: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var members []*models.Participant
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}

		rec, err := models.DecodeRecord(models.KindParticipant, []byte(data))
		if err != nil {
			return nil, err
		}
		members = append(members, rec.(*models.Participant))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return members, nil
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
