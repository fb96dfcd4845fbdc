// Package handler содержит HTTP-обработчики API сервиса бустер-паков.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkravcova/boosterpack-system/internal/draw"
	"github.com/mkravcova/boosterpack-system/internal/middleware"
	"github.com/mkravcova/boosterpack-system/internal/model"
	"github.com/mkravcova/boosterpack-system/internal/repository"
	"github.com/mkravcova/boosterpack-system/internal/reveal"
	"github.com/mkravcova/boosterpack-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	PackAvailability(ctx context.Context, userID int64, category model.PackCategory) (bool, time.Duration, error)
	OpenPack(ctx context.Context, userID int64, category model.PackCategory) (*model.PackSession, error)
	GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*model.PackSession, error)
	BeginReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) error
	CompleteReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) (*model.Card, error)
	Decide(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64, outcome model.Outcome) (model.MatchResult, error)
}

// Handler реализует HTTP-обработчики API сервиса бустер-паков.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type availabilityResponse struct {
	Allowed    bool  `json:"allowed"`
	RetryAfter int64 `json:"retry_after"`
}

// PackAvailability сообщает, доступно ли пользователю открытие пака категории.
func (h *Handler) PackAvailability(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	category, err := model.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	allowed, retryAfter, err := h.service.PackAvailability(r.Context(), userID, category)
	if err != nil {
		h.logger.Error("pack availability error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		Allowed:    allowed,
		RetryAfter: ceilSeconds(retryAfter),
	})
}

type cardResponse struct {
	ID       int64  `json:"id"`
	Rarity   string `json:"rarity"`
	Position int    `json:"position"`
	State    string `json:"state"`
	Name     string `json:"name,omitempty"`
	Age      int    `json:"age,omitempty"`
	Bio      string `json:"bio,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

type sessionResponse struct {
	ID       string         `json:"id"`
	Category string         `json:"category"`
	OpenedAt string         `json:"opened_at"`
	Complete bool           `json:"complete"`
	Cards    []cardResponse `json:"cards"`
}

func sessionView(s *model.PackSession) sessionResponse {
	resp := sessionResponse{
		ID:       s.ID.String(),
		Category: string(s.Category),
		OpenedAt: s.OpenedAt.Format(time.RFC3339),
		Complete: s.Complete(),
		Cards:    make([]cardResponse, 0, len(s.Cards)),
	}

	for _, c := range s.Cards {
		card := cardResponse{
			ID:       c.Card.ID,
			Rarity:   string(c.Card.Rarity),
			Position: c.Position,
			State:    string(c.State),
		}

		// Атрибуты анкеты видны только после полного раскрытия карточки.
		if c.State == model.StateRevealed || c.State == model.StateDecided {
			card.Name = c.Card.Name
			card.Age = c.Card.Age
			card.Bio = c.Card.Bio
			card.PhotoURL = c.Card.PhotoURL
		}

		if c.Outcome != nil {
			card.Outcome = string(*c.Outcome)
		}

		resp.Cards = append(resp.Cards, card)
	}

	return resp
}

// OpenPack открывает новый пак указанной категории для текущего пользователя.
func (h *Handler) OpenPack(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	category, err := model.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	session, err := h.service.OpenPack(r.Context(), userID, category)
	if err != nil {
		var denied *service.EntitlementDeniedError
		if errors.As(err, &denied) {
			w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(denied.RetryAfter), 10))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		if errors.Is(err, draw.ErrInsufficientPool) {
			// Право на открытие уже списано, но наполнить пак нечем.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.logger.Error("open pack error", zap.Error(err), zap.Int64("userID", userID), zap.String("category", string(category)))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, sessionView(session))
}

// GetSession возвращает состояние сессии открытия пака.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	session, err := h.service.GetSession(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get session error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sessionView(session))
}

// BeginReveal начинает раскрытие карточки.
func (h *Handler) BeginReveal(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, cardID, ok := h.cardParams(w, r)
	if !ok {
		return
	}

	if err := h.service.BeginReveal(r.Context(), userID, sessionID, cardID); err != nil {
		h.writeCardError(w, err, userID, cardID)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// CompleteReveal завершает раскрытие карточки и возвращает её атрибуты.
func (h *Handler) CompleteReveal(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, cardID, ok := h.cardParams(w, r)
	if !ok {
		return
	}

	card, err := h.service.CompleteReveal(r.Context(), userID, sessionID, cardID)
	if err != nil {
		h.writeCardError(w, err, userID, cardID)
		return
	}

	writeJSON(w, http.StatusOK, cardResponse{
		ID:       card.ID,
		Rarity:   string(card.Rarity),
		State:    string(model.StateRevealed),
		Name:     card.Name,
		Age:      card.Age,
		Bio:      card.Bio,
		PhotoURL: card.PhotoURL,
	})
}

type decisionRequest struct {
	Outcome string `json:"outcome"`
}

type decisionResponse struct {
	Result string `json:"result"`
}

// Decide фиксирует решение по раскрытой карточке.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, cardID, ok := h.cardParams(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	outcome, err := model.ParseOutcome(req.Outcome)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	result, err := h.service.Decide(r.Context(), userID, sessionID, cardID, outcome)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionFailed) {
			// Решение записано, доставку лайка завершит фоновая сверка.
			writeJSON(w, http.StatusAccepted, decisionResponse{Result: string(model.MatchPending)})
			return
		}
		h.writeCardError(w, err, userID, cardID)
		return
	}

	writeJSON(w, http.StatusOK, decisionResponse{Result: string(result)})
}

func (h *Handler) cardParams(w http.ResponseWriter, r *http.Request) (userID int64, sessionID uuid.UUID, cardID int64, ok bool) {
	userID, ok = middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return 0, uuid.Nil, 0, false
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return 0, uuid.Nil, 0, false
	}

	cardID, err = strconv.ParseInt(chi.URLParam(r, "cardID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return 0, uuid.Nil, 0, false
	}

	return userID, sessionID, cardID, true
}

func (h *Handler) writeCardError(w http.ResponseWriter, err error, userID, cardID int64) {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound), errors.Is(err, repository.ErrCardNotFound):
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	case errors.Is(err, reveal.ErrInvalidTransition):
		// Нарушение порядка переходов — дефект вызывающей стороны, логируем всегда.
		h.logger.Error("invalid reveal transition", zap.Error(err), zap.Int64("userID", userID), zap.Int64("cardID", cardID))
		http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
	default:
		h.logger.Error("card operation error", zap.Error(err), zap.Int64("userID", userID), zap.Int64("cardID", cardID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ceilSeconds(d time.Duration) int64 {
	return int64(math.Ceil(d.Seconds()))
}
