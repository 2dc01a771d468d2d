// Package handler — HTTP-поверхность бота: защищённый ключом bot-api для
// интеграций (список заказов, смена статуса) и приём входящих событий чата.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/order"
)

// EventDispatcher — движок диалогов с точки зрения транспорта.
type EventDispatcher interface {
	HandleEvent(ctx context.Context, ev chat.Event) error
}

type Handler struct {
	apiKey       string
	orders       order.Repository
	lifecycle    *order.Manager
	distributors *catalog.DistributorCache
	dispatcher   EventDispatcher
}

func New(apiKey string, orders order.Repository, lifecycle *order.Manager, distributors *catalog.DistributorCache, dispatcher EventDispatcher) *Handler {
	return &Handler{
		apiKey:       apiKey,
		orders:       orders,
		lifecycle:    lifecycle,
		distributors: distributors,
		dispatcher:   dispatcher,
	}
}

func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/bot-api", func(r chi.Router) {
		r.Use(h.requireAPIKey)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/status", h.SetStatusAsOwner)
		r.Post("/admin/orders/status", h.SetStatusAsAdmin)
	})

	r.Post("/events", h.AcceptEvent)

	return r
}

// requireAPIKey проверяет заголовок x-api-key. Пустой настроенный ключ
// выключает проверку (локальная разработка).
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.apiKey != "" && r.Header.Get("x-api-key") != h.apiKey {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ordersResponse struct {
	Orders       []order.Order                  `json:"orders"`
	Distributors map[string]catalog.Distributor `json:"distributorsMap"`
}

// ListOrders отдаёт заказы с фильтрами telegramId/since и пагинацией, плюс
// карту поставщиков для расшифровки distributorId в позициях.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := order.ListFilter{OwnerID: q.Get("telegramId")}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			http.Error(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Page = page
	}
	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			http.Error(w, "pageSize must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.PageSize = size
	}

	orders, err := h.orders.List(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list orders")
		http.Error(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse{
		Orders:       orders,
		Distributors: h.distributors.Map(r.Context()),
	})
}

type statusRequest struct {
	OrderID    string `json:"orderId"`
	TelegramID string `json:"telegramId,omitempty"`
	Status     string `json:"status"`
}

// SetStatusAsOwner меняет статус по таблице владельца: заказ должен
// принадлежать telegramId.
func (h *Handler) SetStatusAsOwner(w http.ResponseWriter, r *http.Request) {
	req, id, ok := h.decodeStatusRequest(w, r)
	if !ok {
		return
	}
	if req.TelegramID == "" {
		http.Error(w, "telegramId is required", http.StatusBadRequest)
		return
	}
	h.writeStatusResult(w, h.lifecycle.SetStatusAsOwner(r.Context(), req.TelegramID, id, req.Status))
}

// SetStatusAsAdmin меняет статус по административной таблице.
func (h *Handler) SetStatusAsAdmin(w http.ResponseWriter, r *http.Request) {
	req, id, ok := h.decodeStatusRequest(w, r)
	if !ok {
		return
	}
	h.writeStatusResult(w, h.lifecycle.SetStatusAsAdmin(r.Context(), id, req.Status))
}

func (h *Handler) decodeStatusRequest(w http.ResponseWriter, r *http.Request) (statusRequest, uuid.UUID, bool) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, uuid.Nil, false
	}
	id, err := uuid.FromString(req.OrderID)
	if err != nil {
		http.Error(w, "orderId must be a UUID", http.StatusBadRequest)
		return req, uuid.Nil, false
	}
	return req, id, true
}

func (h *Handler) writeStatusResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case errors.Is(err, order.ErrUnknownStatus):
		http.Error(w, "unknown status", http.StatusBadRequest)
	case errors.Is(err, order.ErrTransitionDenied):
		http.Error(w, "status transition denied", http.StatusForbidden)
	case errors.Is(err, order.ErrOrderNotFound):
		http.Error(w, "order not found", http.StatusNotFound)
	default:
		log.Error().Err(err).Msg("handler: failed to update order status")
		http.Error(w, "failed to update order status", http.StatusInternalServerError)
	}
}

// AcceptEvent принимает входящее событие чата от транспорта и отдаёт его
// движку диалогов.
func (h *Handler) AcceptEvent(w http.ResponseWriter, r *http.Request) {
	var ev chat.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if ev.Identity == "" {
		http.Error(w, "identity is required", http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.HandleEvent(r.Context(), ev); err != nil {
		log.Error().Err(err).Str("identity", ev.Identity).Msg("handler: failed to handle event")
		http.Error(w, "failed to handle event", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("handler: failed to encode response")
	}
}
