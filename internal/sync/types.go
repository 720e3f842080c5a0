// Package sync реализует протокол обмена изменениями: сжатие журнала
// в FatLog и реконсиляцию чужого FatLog-а в авторитетный журнал.
package sync

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
)

// ErrCrossTournament indicates that a pushed batch references entities of
// more than one tournament. Always fatal, the transaction is rolled back.
var ErrCrossTournament = errors.New("batch references another tournament")

// CondensedEntry — одна затронутая запись журнального среза: через какие
// версии она прошла и ее текущее значение (или tombstone).
type CondensedEntry struct {
	OldVersions    []uuid.UUID
	CurrentValue   models.EntityState
	UUID           uuid.UUID
	CurrentVersion uuid.UUID
}

// FatLog — единица обмена между пирами: плоский упорядоченный журнал
// плюс текущее значение на каждую затронутую пару (kind, uuid).
type FatLog struct {
	Entities map[models.EntityKind][]CondensedEntry
	Log      []models.LogEntry
}

// MergeStrategy определяет поведение при конкурентных изменениях.
type MergeStrategy string

const (
	// MergeReject отклоняет push при любых локальных изменениях после
	// общего предка; клиент обязан перечитать и повторить.
	MergeReject MergeStrategy = "reject"

	// MergeAlwaysLocal принимает push, но для конфликтующих записей
	// локальное значение дописывается в журнал поверх чужого.
	MergeAlwaysLocal MergeStrategy = "always_local"
)

// ParseMergeStrategy разбирает значение конфигурации.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case MergeReject, MergeAlwaysLocal:
		return MergeStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown merge strategy %q", s)
	}
}

// Status — исход реконсиляции, на котором ветвится вызывающая сторона.
type Status string

const (
	// StatusSuccess — изменения приняты.
	StatusSuccess Status = "success"

	// StatusRejected — push отклонен политикой слияния; клиент должен
	// перечитать журнал и повторить.
	StatusRejected Status = "rejected"

	// StatusAmbiguousAncestor — пустой журнал без общего предка:
	// общую точку назвать невозможно, запрос некорректен.
	StatusAmbiguousAncestor Status = "ambiguous_ancestor"
)

// Outcome — типизированный результат реконсиляции.
type Outcome struct {
	Batch                 *batch.Batch // заполнен при returnBatch и успехе
	Status                Status
	NewLastCommonAncestor uuid.UUID
}
