// Package sync реализует клиентский цикл обмена: fetch изменений с
// сервера в локальное зеркало и push локального журнала.
package sync

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/client/storage"
	"github.com/iudanet/tabsync/pkg/api"
)

// ServerClient — серверные операции, нужные циклу синхронизации.
type ServerClient interface {
	FetchLog(ctx context.Context, tournamentID uuid.UUID, since *uuid.UUID) (*api.FatLog, error)
	PushLog(ctx context.Context, tournamentID uuid.UUID, req api.SyncRequest) (*api.SyncResponse, error)
}

// Service драйвит обмен между сервером и локальным зеркалом.
type Service struct {
	client ServerClient
	store  storage.Store
}

// NewService создает клиентский сервис синхронизации
func NewService(client ServerClient, store storage.Store) *Service {
	return &Service{client: client, store: store}
}

// FetchResult — итог одного fetch-а.
type FetchResult struct {
	NewCursor *uuid.UUID
	Entries   int
	Entities  int
}

// Fetch выкачивает изменения турнира после сохраненного курсора,
// вливает текущие значения в зеркало и продвигает курсор на последнюю
// полученную строку журнала. Пустой ответ оставляет курсор на месте.
func (s *Service) Fetch(ctx context.Context, tournamentID uuid.UUID) (*FetchResult, error) {
	cursor, err := s.store.Cursor(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}

	fat, err := s.client.FetchLog(ctx, tournamentID, cursor)
	if err != nil {
		return nil, err
	}

	entities := 0
	for kind, entries := range fat.Entities {
		for _, entry := range entries {
			if entry.CurrentValue.Deleted {
				err = s.store.DeleteEntity(ctx, tournamentID, kind, entry.UUID)
			} else {
				err = s.store.SaveEntity(ctx, tournamentID, kind, entry.UUID, entry.CurrentValue.Value)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to mirror %s/%s: %w", kind, entry.UUID, err)
			}
			entities++
		}
	}

	result := &FetchResult{Entries: len(fat.Log), Entities: entities, NewCursor: cursor}
	if len(fat.Log) > 0 {
		head := fat.Log[len(fat.Log)-1].UUID
		if err := s.store.SetCursor(ctx, tournamentID, head); err != nil {
			return nil, fmt.Errorf("failed to advance cursor: %w", err)
		}
		result.NewCursor = &head
	}

	return result, nil
}

// Push отправляет FatLog локальных изменений с сохраненным курсором в
// роли общего предка. При успехе курсор продвигается на нового предка,
// названного сервером; отклоненный push курсор не трогает — нужно
// сделать fetch и повторить.
func (s *Service) Push(ctx context.Context, tournamentID uuid.UUID, fat api.FatLog) (*api.SyncResponse, error) {
	cursor, err := s.store.Cursor(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor: %w", err)
	}

	resp, err := s.client.PushLog(ctx, tournamentID, api.SyncRequest{
		LastCommonAncestor: cursor,
		Log:                fat,
	})
	if err != nil {
		return nil, err
	}

	if resp.Outcome == api.OutcomeSuccess && resp.NewLastCommonAncestor != nil {
		if err := s.store.SetCursor(ctx, tournamentID, *resp.NewLastCommonAncestor); err != nil {
			return nil, fmt.Errorf("failed to advance cursor: %w", err)
		}
	}

	return resp, nil
}

// TournamentStatus — состояние зеркала одного турнира.
type TournamentStatus struct {
	EntityCounts map[string]int
	TournamentID uuid.UUID
	Cursor       uuid.UUID
}

// Status возвращает состояние зеркала по всем известным турнирам.
func (s *Service) Status(ctx context.Context) ([]TournamentStatus, error) {
	cursors, err := s.store.Cursors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursors: %w", err)
	}

	statuses := make([]TournamentStatus, 0, len(cursors))
	for tid, cursor := range cursors {
		counts, err := s.store.EntityCounts(ctx, tid)
		if err != nil {
			return nil, fmt.Errorf("failed to count entities for %s: %w", tid, err)
		}
		statuses = append(statuses, TournamentStatus{
			TournamentID: tid,
			Cursor:       cursor,
			EntityCounts: counts,
		})
	}

	return statuses, nil
}
