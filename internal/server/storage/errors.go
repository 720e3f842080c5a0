package storage

import "errors"

// Common storage errors
var (
	// ErrUnknownCursor indicates that a sync cursor does not name a log
	// entry of the requested tournament (e.g. history was truncated)
	ErrUnknownCursor = errors.New("unknown log cursor")

	// ErrTournamentNotFound indicates that the tournament does not exist
	ErrTournamentNotFound = errors.New("tournament not found")

	// ErrEntityNotFound indicates that an entity payload was not found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates that user with this username already exists
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrRollback заставляет InTx откатить транзакцию без настоящей ошибки.
	// Используется push-обработчиком: отклоненная реконсиляция не должна
	// оставлять следов в журнале.
	ErrRollback = errors.New("transaction rollback requested")
)
