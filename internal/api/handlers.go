package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/internal/session"
	"github.com/shehryarbajwa/hypercart/internal/store"
	"github.com/shehryarbajwa/hypercart/pkg/models"
)

// Sessions is the orchestrator surface exposed over HTTP
type Sessions interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*session.Session, error)
	List() []models.SessionInfo
	Get(id string) (*session.Session, bool)
	ShowSession(ctx context.Context, id string) error
	HideAllSessions(ctx context.Context)
	CloseSession(id string) error
	Reload(ctx context.Context, id string) error
	GoBack(ctx context.Context, id string) error
	Resize(ctx context.Context, width, height int) error
}

// Commands runs and stops automation on sessions
type Commands interface {
	Run(ctx context.Context, sessionID string, command models.Command, data json.RawMessage) error
	Stop(sessionID string) error
}

// Orders reads scraped orders
type Orders interface {
	ListOrders(ctx context.Context, accountID string) ([]models.Order, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// Cards reads and manages generated cards
type Cards interface {
	ListAll(ctx context.Context) ([]*models.Card, error)
	FetchOneUnused(ctx context.Context, amount string) (*models.Card, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sessions Sessions
	commands Commands
	orders   Orders
	cards    Cards
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(sessions Sessions, commands Commands, orders Orders, cards Cards, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions: sessions,
		commands: commands,
		orders:   orders,
		cards:    cards,
		logger:   logger,
	}
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.CreateSession(context.WithoutCancel(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.Info())
}

// ListSessions handles GET /v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.List())
}

// ShowSession handles POST /v1/sessions/{id}/show
func (h *Handler) ShowSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ShowSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HideSessions handles POST /v1/sessions/hide
func (h *Handler) HideSessions(w http.ResponseWriter, r *http.Request) {
	h.sessions.HideAllSessions(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ReloadSession handles POST /v1/sessions/{id}/reload
func (h *Handler) ReloadSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Reload(context.WithoutCancel(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BackSession handles POST /v1/sessions/{id}/back
func (h *Handler) BackSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.GoBack(context.WithoutCancel(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession handles DELETE /v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.CloseSession(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDebugURL handles GET /v1/sessions/{id}/debug
func (h *Handler) GetDebugURL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := h.sessions.Get(id); !ok {
		writeError(w, session.ErrNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"debuggerUrl": fmt.Sprintf("ws://%s/v1/sessions/%s/ws", r.Host, id),
		"sessionId":   id,
	})
}

// ResizeHost handles POST /v1/host/resize
func (h *Handler) ResizeHost(w http.ResponseWriter, r *http.Request) {
	var req models.ResizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.sessions.Resize(r.Context(), req.Width, req.Height); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunCommand handles POST /v1/automation/run
func (h *Handler) RunCommand(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("Processing command",
		zap.String("session_id", req.SessionID),
		zap.String("command", string(req.Command)))

	// The command outlives the request
	if err := h.commands.Run(context.WithoutCancel(r.Context()), req.SessionID, req.Command, req.Data); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// StopCommand handles POST /v1/automation/stop
func (h *Handler) StopCommand(w http.ResponseWriter, r *http.Request) {
	var req models.StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}
	if err := h.commands.Stop(req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOrders handles GET /v1/orders?accountId=
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), r.URL.Query().Get("accountId"))
	if err != nil {
		h.logger.Error("❌ Failed to list orders", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder handles GET /v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListCards handles GET /v1/cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.cards.ListAll(r.Context())
	if err != nil {
		h.logger.Error("❌ Failed to list cards", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

// ClaimCard handles POST /v1/cards/claim?amount=
func (h *Handler) ClaimCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.FetchOneUnused(r.Context(), r.URL.Query().Get("amount"))
	if err != nil {
		h.logger.Error("❌ Failed to claim card", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if card == nil {
		http.Error(w, "No unused card available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// DeleteCards handles DELETE /v1/cards
func (h *Handler) DeleteCards(w http.ResponseWriter, r *http.Request) {
	var req models.DeleteCardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := h.cards.DeleteMany(r.Context(), req.IDs)
	if err != nil {
		h.logger.Error("❌ Failed to delete cards", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrLimitReached):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
