package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/handler"
	"github.com/vasiliy-maslov/partsbot/internal/order"
)

type mockOrderRepository struct {
	getByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listFunc         func(ctx context.Context, filter order.ListFilter) ([]order.Order, error)
	updateStatusFunc func(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error
}

func (m *mockOrderRepository) Create(context.Context, *order.Order) error { return nil }

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) ListByOwner(context.Context, string) ([]order.Order, error) {
	return nil, nil
}

func (m *mockOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error {
	return m.updateStatusFunc(ctx, id, ownerID, status)
}

func (m *mockOrderRepository) Delete(context.Context, uuid.UUID, string) error { return nil }

func (m *mockOrderRepository) DeleteAllByOwner(context.Context, string) error { return nil }

type stubSource struct{}

func (stubSource) Distributors(context.Context) ([]catalog.Distributor, error) {
	return []catalog.Distributor{{ID: "7", Name: "Склад"}}, nil
}

type stubDispatcher struct {
	events []chat.Event
	err    error
}

func (d *stubDispatcher) HandleEvent(_ context.Context, ev chat.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, ev)
	return nil
}

func newTestHandler(repo *mockOrderRepository, apiKey string) (*handler.Handler, *stubDispatcher) {
	dispatcher := &stubDispatcher{}
	h := handler.New(
		apiKey,
		repo,
		order.NewManager(repo),
		catalog.NewDistributorCache(stubSource{}, time.Minute),
		dispatcher,
	)
	return h, dispatcher
}

func TestHandler_APIKeyRequired(t *testing.T) {
	repo := &mockOrderRepository{
		listFunc: func(context.Context, order.ListFilter) ([]order.Order, error) { return nil, nil },
	}
	h, _ := newTestHandler(repo, "secret")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bot-api/orders")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/bot-api/orders", nil)
	req.Header.Set("x-api-key", "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_ListOrders(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	var gotFilter order.ListFilter
	repo := &mockOrderRepository{
		listFunc: func(_ context.Context, filter order.ListFilter) ([]order.Order, error) {
			gotFilter = filter
			return []order.Order{{ID: orderID, OwnerID: "42", Status: order.StatusNew}}, nil
		},
	}
	h, _ := newTestHandler(repo, "")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bot-api/orders?telegramId=42&since=2026-08-01T00:00:00Z&page=2&pageSize=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "42", gotFilter.OwnerID)
	require.NotNil(t, gotFilter.Since)
	assert.Equal(t, 2, gotFilter.Page)
	assert.Equal(t, 10, gotFilter.PageSize)

	var body struct {
		Orders       []order.Order                  `json:"orders"`
		Distributors map[string]catalog.Distributor `json:"distributorsMap"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Orders, 1)
	assert.Equal(t, orderID, body.Orders[0].ID)
	assert.Contains(t, body.Distributors, "7")
}

func TestHandler_ListOrders_BadSince(t *testing.T) {
	repo := &mockOrderRepository{
		listFunc: func(context.Context, order.ListFilter) ([]order.Order, error) { return nil, nil },
	}
	h, _ := newTestHandler(repo, "")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/bot-api/orders?since=yesterday")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestHandler_SetStatus_OwnerVsAdmin(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	stored := &order.Order{ID: orderID, OwnerID: "42", Status: order.StatusCompleted}
	repo := &mockOrderRepository{
		getByIDFunc: func(context.Context, uuid.UUID) (*order.Order, error) { return stored, nil },
		updateStatusFunc: func(context.Context, uuid.UUID, string, order.Status) error {
			return nil
		},
	}
	h, _ := newTestHandler(repo, "")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	// Владелец не может трогать завершённый заказ.
	resp := postJSON(t, srv.URL+"/bot-api/orders/status", map[string]string{
		"orderId": orderID.String(), "telegramId": "42", "status": "in_progress",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Администратор — может: те же таблицы переходов, что и в сценах.
	resp = postJSON(t, srv.URL+"/bot-api/admin/orders/status", map[string]string{
		"orderId": orderID.String(), "status": "in_progress",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_SetStatus_Validation(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	repo := &mockOrderRepository{
		getByIDFunc: func(context.Context, uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: orderID, OwnerID: "42", Status: order.StatusNew}, nil
		},
	}
	h, _ := newTestHandler(repo, "")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	// Неизвестный статус отклоняется независимо от роли.
	resp := postJSON(t, srv.URL+"/bot-api/admin/orders/status", map[string]string{
		"orderId": orderID.String(), "status": "shipped",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Владельцу обязателен telegramId.
	resp = postJSON(t, srv.URL+"/bot-api/orders/status", map[string]string{
		"orderId": orderID.String(), "status": "rejected",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Кривой UUID.
	resp = postJSON(t, srv.URL+"/bot-api/orders/status", map[string]string{
		"orderId": "not-a-uuid", "telegramId": "42", "status": "rejected",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_AcceptEvent(t *testing.T) {
	repo := &mockOrderRepository{}
	h, dispatcher := newTestHandler(repo, "secret")
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	// Входящие события не требуют API-ключа: их шлёт транспорт.
	resp := postJSON(t, srv.URL+"/events", chat.Event{Identity: "42", Text: "Поиск"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, "Поиск", dispatcher.events[0].Text)

	// Событие без identity отбрасывается.
	resp = postJSON(t, srv.URL+"/events", chat.Event{Text: "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
