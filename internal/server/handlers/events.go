package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/tabsync/internal/notify"
	"github.com/iudanet/tabsync/internal/server/storage"
)

// Интервал keep-alive комментариев SSE-потока: прокси и балансировщики
// закрывают соединения без трафика.
const keepAliveInterval = time.Second

// EventsHandler отдает поток событий турнира по SSE
type EventsHandler struct {
	logger   *slog.Logger
	store    storage.Store
	notifier *notify.Manager
}

// NewEventsHandler создает handler для GET /api/v1/tournament/{tournament_id}/events
func NewEventsHandler(logger *slog.Logger, store storage.Store, notifier *notify.Manager) *EventsHandler {
	return &EventsHandler{
		logger:   logger,
		store:    store,
		notifier: notifier,
	}
}

// Stream обрабатывает GET /api/v1/tournament/{tournament_id}/events?participant_id=uuid
// Открывает SSE-поток: события release-времен турнира плюс персональные
// события указанного участника, вперемешку. Поток живет до закрытия
// соединения клиентом.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tournamentID, err := uuid.Parse(r.PathValue("tournament_id"))
	if err != nil {
		sendError(w, h.logger, "invalid tournament id", http.StatusBadRequest)
		return
	}

	participantID, err := uuid.Parse(r.URL.Query().Get("participant_id"))
	if err != nil {
		sendError(w, h.logger, "invalid participant_id parameter", http.StatusBadRequest)
		return
	}

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "user id not found in context")
		sendError(w, h.logger, "unauthorized", http.StatusUnauthorized)
		return
	}

	exists, err := h.store.TournamentExists(ctx, tournamentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check tournament", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}
	if !exists {
		sendError(w, h.logger, "tournament not found", http.StatusNotFound)
		return
	}

	authorized, err := h.store.IsAuthorized(ctx, userID, tournamentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check authorization", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}
	if !authorized {
		sendError(w, h.logger, "no access to this tournament", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, h.logger, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.notifier.Subscribe(ctx, h.store, tournamentID, participantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to subscribe", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.InfoContext(ctx, "event stream opened",
		slog.String("tournament_id", tournamentID.String()),
		slog.String("participant_id", participantID.String()))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to marshal event", slog.Any("error", err))
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
