package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/cache"
	"github.com/iudanet/tabsync/internal/notify"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/internal/sync"
	"github.com/iudanet/tabsync/pkg/api"
)

// LogHandler обрабатывает fetch и push журнала турнира
type LogHandler struct {
	logger   *slog.Logger
	store    storage.Store
	views    *cache.Cache
	notifier *notify.Manager
	strategy sync.MergeStrategy
}

// NewLogHandler создает handler для /api/v1/tournament/{tournament_id}/log
func NewLogHandler(logger *slog.Logger, store storage.Store, views *cache.Cache, notifier *notify.Manager, strategy sync.MergeStrategy) *LogHandler {
	return &LogHandler{
		logger:   logger,
		store:    store,
		views:    views,
		notifier: notifier,
		strategy: strategy,
	}
}

// tournamentFromRequest разбирает tournament_id из пути и проверяет
// существование турнира и право доступа. Несуществующий турнир — 404,
// отсутствие права — 403.
func (h *LogHandler) tournamentFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	ctx := r.Context()

	tournamentID, err := uuid.Parse(r.PathValue("tournament_id"))
	if err != nil {
		sendError(w, h.logger, "invalid tournament id", http.StatusBadRequest)
		return uuid.Nil, false
	}

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id not found in context")
		sendError(w, h.logger, "unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}

	exists, err := h.store.TournamentExists(ctx, tournamentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check tournament", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return uuid.Nil, false
	}
	if !exists {
		sendError(w, h.logger, "tournament not found", http.StatusNotFound)
		return uuid.Nil, false
	}

	authorized, err := h.store.IsAuthorized(ctx, userID, tournamentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check authorization", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return uuid.Nil, false
	}
	if !authorized {
		h.logger.WarnContext(ctx, "access denied",
			slog.String("user_id", userID.String()),
			slog.String("tournament_id", tournamentID.String()))
		sendError(w, h.logger, "no access to this tournament", http.StatusForbidden)
		return uuid.Nil, false
	}

	return tournamentID, true
}

// Fetch обрабатывает GET /api/v1/tournament/{tournament_id}/log?since=uuid
// Возвращает FatLog изменений после курсора since; без since — полный
// снапшот турнира (кэшируемый под текущей головой журнала).
func (h *LogHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tournamentID, ok := h.tournamentFromRequest(w, r)
	if !ok {
		return
	}

	var since *uuid.UUID
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := uuid.Parse(sinceStr)
		if err != nil {
			sendError(w, h.logger, "invalid since parameter", http.StatusBadRequest)
			return
		}
		since = &parsed
	}

	var wire *api.FatLog
	var err error
	if since == nil {
		// Полный снапшот одинаков для всех клиентов при одной голове
		// журнала — его выгодно кэшировать.
		wire, err = cache.GetOrCompute(ctx, h.views, h.store, tournamentID,
			cache.Key(tournamentID, "full_log"),
			func(ctx context.Context) (*api.FatLog, error) {
				return h.changesSince(ctx, tournamentID, nil)
			})
	} else {
		wire, err = h.changesSince(ctx, tournamentID, since)
	}
	if err != nil {
		if errors.Is(err, storage.ErrUnknownCursor) {
			sendError(w, h.logger, "unknown since cursor", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to aggregate changes", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "log fetched",
		slog.String("tournament_id", tournamentID.String()),
		slog.Int("entries", len(wire.Log)))

	sendJSON(w, h.logger, wire, http.StatusOK)
}

func (h *LogHandler) changesSince(ctx context.Context, tournamentID uuid.UUID, since *uuid.UUID) (*api.FatLog, error) {
	fat, err := sync.ChangesSince(ctx, h.store, tournamentID, since)
	if err != nil {
		return nil, err
	}
	return toWireFatLog(fat)
}

// Push обрабатывает POST /api/v1/tournament/{tournament_id}/log
// Вливает чужой FatLog через реконсиляцию в одной транзакции. При
// исходе, отличном от успеха, транзакция откатывается и клиенту
// возвращается исход; повторный push того же журнала идемпотентен.
func (h *LogHandler) Push(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tournamentID, ok := h.tournamentFromRequest(w, r)
	if !ok {
		return
	}

	var req api.SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode sync request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	remote, err := fromWireFatLog(&req.Log)
	if err != nil {
		h.logger.WarnContext(ctx, "malformed fat log", slog.Any("error", err))
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	var outcome *sync.Outcome
	err = h.store.InTx(ctx, func(q storage.Querier) error {
		var txErr error
		outcome, txErr = sync.Reconcile(ctx, q, tournamentID, remote, req.LastCommonAncestor, h.strategy, true)
		if txErr != nil {
			return txErr
		}
		if outcome.Status != sync.StatusSuccess {
			return storage.ErrRollback
		}
		// События рассылаются до коммита: подписчики получают их,
		// только если транзакция в итоге закоммитится, но диф считается
		// по транзакционному состоянию.
		h.notifier.ProcessBatch(ctx, q, outcome.Batch)
		return nil
	})
	if err != nil && !errors.Is(err, storage.ErrRollback) {
		if errors.Is(err, sync.ErrCrossTournament) {
			h.logger.WarnContext(ctx, "cross-tournament push rejected", slog.Any("error", err))
			sendError(w, h.logger, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, storage.ErrUnknownCursor) {
			sendError(w, h.logger, "unknown last common ancestor", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "reconciliation failed", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.SyncResponse{Outcome: outcomeValue(outcome.Status)}
	if outcome.Status == sync.StatusSuccess {
		ancestor := outcome.NewLastCommonAncestor
		resp.NewLastCommonAncestor = &ancestor
	}

	h.logger.InfoContext(ctx, "log pushed",
		slog.String("tournament_id", tournamentID.String()),
		slog.String("outcome", resp.Outcome),
		slog.Int("entries", len(req.Log.Log)))

	sendJSON(w, h.logger, resp, http.StatusOK)
}

func outcomeValue(status sync.Status) string {
	switch status {
	case sync.StatusRejected:
		return api.OutcomeRejected
	case sync.StatusAmbiguousAncestor:
		return api.OutcomeAmbiguousAncestor
	default:
		return api.OutcomeSuccess
	}
}
