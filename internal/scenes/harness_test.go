package scenes_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/history"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
	"github.com/vasiliy-maslov/partsbot/internal/scenes"
	"github.com/vasiliy-maslov/partsbot/internal/session"
)

// recordingSender копит исходящие ответы для проверок.
type recordingSender struct {
	mu      sync.Mutex
	replies []chat.Reply
}

func (s *recordingSender) Send(_ context.Context, _ string, reply chat.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, reply)
	return nil
}

// allText склеивает тексты ответов вместе с подписями inline-кнопок:
// проверки смотрят и на сообщения, и на предложенные действия.
func (s *recordingSender) allText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	for _, r := range s.replies {
		b.WriteString(r.Text)
		b.WriteString("\n")
		for _, row := range r.Buttons {
			for _, btn := range row {
				b.WriteString(btn.Text)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = nil
}

type stubGateway struct {
	brandsFunc   func(ctx context.Context, number string) ([]catalog.Brand, error)
	articlesFunc func(ctx context.Context, number, brand string) ([]catalog.Article, error)
}

func (g *stubGateway) SearchBrands(ctx context.Context, number string) ([]catalog.Brand, error) {
	return g.brandsFunc(ctx, number)
}

func (g *stubGateway) SearchArticles(ctx context.Context, number, brand string) ([]catalog.Article, error) {
	return g.articlesFunc(ctx, number, brand)
}

// stubHistory — история поиска без хранилища.
type stubHistory struct{}

func (stubHistory) Add(context.Context, history.Entry) error { return nil }
func (stubHistory) Last(context.Context, string, int) ([]history.Entry, error) {
	return nil, nil
}
func (stubHistory) Clear(context.Context, string) error { return nil }

// memOrders — заказы в памяти процесса.
type memOrders struct {
	mu        sync.Mutex
	orders    map[uuid.UUID]*order.Order
	createErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[uuid.UUID]*order.Order)}
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	id, err := uuid.NewV4()
	if err != nil {
		return err
	}
	o.ID = id
	o.CreatedAt = time.Now()
	o.StatusChangedAt = o.CreatedAt
	if o.Status == "" {
		o.Status = order.StatusNew
	}
	stored := *o
	m.orders[id] = &stored
	return nil
}

func (m *memOrders) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (m *memOrders) ListByOwner(_ context.Context, ownerID string) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if o.OwnerID == ownerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) List(_ context.Context, _ order.ListFilter) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id uuid.UUID, ownerID string, status order.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || (ownerID != "" && o.OwnerID != ownerID) {
		return order.ErrOrderNotFound
	}
	o.Status = status
	o.StatusChangedAt = time.Now()
	return nil
}

func (m *memOrders) Delete(_ context.Context, id uuid.UUID, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.OwnerID != ownerID {
		return order.ErrOrderNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *memOrders) DeleteAllByOwner(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		if o.OwnerID == ownerID {
			delete(m.orders, id)
		}
	}
	return nil
}

func (m *memOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// memProfiles — анкеты в памяти процесса.
type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]*profile.Profile
	nextID   int64
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]*profile.Profile)}
}

func (m *memProfiles) Create(_ context.Context, p *profile.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.TelegramID]; ok {
		return profile.ErrProfileExists
	}
	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = time.Now()
	stored := *p
	m.profiles[p.TelegramID] = &stored
	return nil
}

func (m *memProfiles) GetByTelegramID(_ context.Context, telegramID string) (*profile.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[telegramID]
	if !ok {
		return nil, profile.ErrProfileNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memProfiles) Update(_ context.Context, telegramID string, upd profile.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[telegramID]
	if !ok {
		return profile.ErrProfileNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Phone != nil {
		p.Phone = *upd.Phone
	}
	if upd.Address != nil {
		p.Address = *upd.Address
	}
	if upd.OrgINN != nil {
		p.OrgINN = *upd.OrgINN
	}
	if upd.OrgTitle != nil {
		p.OrgTitle = *upd.OrgTitle
	}
	if upd.OrgOGRN != nil {
		p.OrgOGRN = *upd.OrgOGRN
	}
	if upd.OrgAddress != nil {
		p.OrgAddress = *upd.OrgAddress
	}
	return nil
}

func (m *memProfiles) Delete(_ context.Context, telegramID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[telegramID]; !ok {
		return profile.ErrProfileNotFound
	}
	delete(m.profiles, telegramID)
	return nil
}

// stubNotifier фиксирует уведомления и умеет падать по заказу теста.
type stubNotifier struct {
	mu            sync.Mutex
	orderErr      error
	orders        int
	registrations int
}

func (n *stubNotifier) NewOrder(context.Context, *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.orderErr != nil {
		return n.orderErr
	}
	n.orders++
	return nil
}

func (n *stubNotifier) NewRegistration(context.Context, *profile.Profile) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registrations++
	return nil
}

func (n *stubNotifier) orderCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.orders
}

type stubDistributorSource struct{}

func (stubDistributorSource) Distributors(context.Context) ([]catalog.Distributor, error) {
	return []catalog.Distributor{{ID: "7", Name: "Склад", Contractor: "ООО Ромашка"}}, nil
}

type harness struct {
	engine   *engine.Engine
	store    *session.MemoryStore
	sender   *recordingSender
	orders   *memOrders
	profiles *memProfiles
	notifier *stubNotifier
}

func newHarness(t *testing.T, gateway *stubGateway, adminIDs ...string) *harness {
	t.Helper()

	orders := newMemOrders()
	profiles := newMemProfiles()
	notifier := &stubNotifier{}

	deps := scenes.Deps{
		Catalog:      gateway,
		Distributors: catalog.NewDistributorCache(stubDistributorSource{}, time.Minute),
		Orders:       orders,
		Lifecycle:    order.NewManager(orders),
		Profiles:     profile.NewService(profiles, orders, stubHistory{}),
		History:      stubHistory{},
		Notifier:     notifier,
		Roles:        rbac.NewResolver(adminIDs),
	}

	store := session.NewMemoryStore(time.Hour)
	sender := &recordingSender{}
	eng := engine.New(store, sender,
		engine.WithInterceptors(scenes.Interceptors()...),
		engine.WithDefaultHandler(scenes.DefaultHandler(deps)),
		engine.WithFallbackScene(scenes.FallbackScene),
	)
	scenes.RegisterAll(eng, deps)

	return &harness{engine: eng, store: store, sender: sender, orders: orders, profiles: profiles, notifier: notifier}
}

func (h *harness) text(t *testing.T, identity, text string) {
	t.Helper()
	if err := h.engine.HandleEvent(context.Background(), chat.Event{Identity: identity, Text: text}); err != nil {
		t.Fatalf("handle text event %q: %v", text, err)
	}
}

func (h *harness) callback(t *testing.T, identity, payload string) {
	t.Helper()
	if err := h.engine.HandleEvent(context.Background(), chat.Event{Identity: identity, Callback: payload}); err != nil {
		t.Fatalf("handle callback %q: %v", payload, err)
	}
}

func (h *harness) session(t *testing.T, identity string) *session.Session {
	t.Helper()
	sess, err := h.store.Get(context.Background(), identity)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess == nil {
		t.Fatalf("session %s not found", identity)
	}
	return sess
}
