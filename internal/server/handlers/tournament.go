package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/batch"
	"github.com/iudanet/tabsync/internal/models"
	"github.com/iudanet/tabsync/internal/server/storage"
	"github.com/iudanet/tabsync/pkg/api"
)

// TournamentHandler обрабатывает создание турниров
type TournamentHandler struct {
	logger *slog.Logger
	store  storage.Store
}

// NewTournamentHandler создает handler для POST /api/v1/tournament/{tournament_id}
func NewTournamentHandler(logger *slog.Logger, store storage.Store) *TournamentHandler {
	return &TournamentHandler{logger: logger, store: store}
}

// Create обрабатывает POST /api/v1/tournament/{tournament_id}
// Создает турнир с указанным id через обычный журнальный коммит и
// выдает создателю право администрирования. Повторное создание — 409.
func (h *TournamentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tournamentID, err := uuid.Parse(r.PathValue("tournament_id"))
	if err != nil {
		sendError(w, h.logger, "invalid tournament id", http.StatusBadRequest)
		return
	}

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id not found in context")
		sendError(w, h.logger, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CreateTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		sendError(w, h.logger, "name is required", http.StatusBadRequest)
		return
	}

	var head *models.LogEntry
	err = h.store.InTx(ctx, func(q storage.Querier) error {
		exists, txErr := q.TournamentExists(ctx, tournamentID)
		if txErr != nil {
			return txErr
		}
		if exists {
			return storage.ErrRollback
		}

		group := batch.New()
		group.Add(&models.Tournament{
			UUID:         tournamentID,
			Name:         req.Name,
			LastModified: time.Now().UTC().Truncate(time.Second),
		})

		head, txErr = group.SaveAllAndLog(ctx, q, tournamentID)
		return txErr
	})
	if err != nil {
		if errors.Is(err, storage.ErrRollback) {
			sendError(w, h.logger, "tournament already exists", http.StatusConflict)
			return
		}
		h.logger.ErrorContext(ctx, "failed to create tournament", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.store.GrantTournament(ctx, userID, tournamentID); err != nil {
		h.logger.ErrorContext(ctx, "failed to grant tournament", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "tournament created",
		slog.String("tournament_id", tournamentID.String()),
		slog.String("user_id", userID.String()))

	sendJSON(w, h.logger, api.CreateTournamentResponse{
		TournamentID: tournamentID,
		LogHead:      head.UUID,
	}, http.StatusCreated)
}
