package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/models"
)

// RegistryRow — строка реестра tournament_entities: какой записи какой
// турнир принадлежит и удалена ли она. Реестр переживает удаление payload-а,
// поэтому tombstone отличим от "никогда не существовало".
type RegistryRow struct {
	Kind         models.EntityKind
	UUID         uuid.UUID
	TournamentID uuid.UUID
	IsDeleted    bool
}

// Querier объединяет операции чтения и записи журнала и записей.
// Реализуется и самим хранилищем (autocommit), и открытой транзакцией,
// поэтому движок реконсиляции не знает, в каком режиме он работает.
type Querier interface {
	// AppendLogEntry добавляет одну строку журнала, назначая
	// sequence_idx = max + 1 для данного турнира. Если entryID задан,
	// используется он, иначе генерируется новый (нужно при реплее
	// чужого журнала, чтобы версии оставались стабильными).
	AppendLogEntry(ctx context.Context, tournamentID uuid.UUID, kind models.EntityKind, targetID uuid.UUID, entryID *uuid.UUID) (*models.LogEntry, error)

	// InsertLogEntries вставляет уже сформированные строки журнала.
	InsertLogEntries(ctx context.Context, entries []models.LogEntry) error

	// MaxSequenceIdx возвращает текущий максимум sequence_idx турнира
	// (0, если журнал пуст).
	MaxSequenceIdx(ctx context.Context, tournamentID uuid.UUID) (int64, error)

	// LogSince возвращает строки журнала строго после курсора since
	// в порядке возрастания sequence_idx. since == nil означает
	// "с самого начала". Неизвестный курсор — ErrUnknownCursor.
	LogSince(ctx context.Context, tournamentID uuid.UUID, since *uuid.UUID) ([]models.LogEntry, error)

	// LogHead возвращает последнюю строку журнала турнира или nil,
	// если журнал пуст.
	LogHead(ctx context.Context, tournamentID uuid.UUID) (*models.LogEntry, error)

	// SaveRecords сохраняет записи одного типа одной bulk-операцией.
	SaveRecords(ctx context.Context, kind models.EntityKind, recs []models.Record) error

	// LoadRecords загружает текущие значения записей по id.
	// Отсутствующие id в результат не попадают.
	LoadRecords(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) (map[uuid.UUID]models.Record, error)

	// DeleteRecords удаляет payload-строки записей одного типа.
	DeleteRecords(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) error

	// UpsertRegistryRows создает или обновляет строки реестра.
	UpsertRegistryRows(ctx context.Context, rows []RegistryRow) error

	// RegistryRows возвращает существующие строки реестра по id записей.
	RegistryRows(ctx context.Context, ids []uuid.UUID) ([]RegistryRow, error)

	// TournamentExists проверяет, что турнир существует.
	TournamentExists(ctx context.Context, tournamentID uuid.UUID) (bool, error)

	// TouchTournament обновляет last_modified турнира.
	TouchTournament(ctx context.Context, tournamentID uuid.UUID, at time.Time) error

	// TournamentRounds возвращает все раунды турнира.
	TournamentRounds(ctx context.Context, tournamentID uuid.UUID) ([]*models.Round, error)

	// TeamMembers возвращает спикеров перечисленных команд.
	TeamMembers(ctx context.Context, teamIDs []uuid.UUID) ([]*models.Participant, error)
}

// UserStore определяет операции с учетными записями и правами.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GrantTournament(ctx context.Context, userID, tournamentID uuid.UUID) error

	// IsAuthorized проверяет право администрирования турнира.
	IsAuthorized(ctx context.Context, userID, tournamentID uuid.UUID) (bool, error)
}

// Store — полный интерфейс серверного хранилища.
type Store interface {
	Querier
	UserStore

	// InTx выполняет fn внутри одной транзакции. Ошибка из fn (включая
	// ErrRollback) откатывает всё; иначе транзакция коммитится.
	InTx(ctx context.Context, fn func(q Querier) error) error

	Close() error
}
