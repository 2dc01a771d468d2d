package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
)

var (
	ErrTransitionDenied = errors.New("order status transition denied")
	ErrDeleteDenied     = errors.New("order can be deleted only when rejected")
)

// Таблицы переходов — чистые данные, общие для диалоговых сценариев и
// HTTP-API: обе поверхности читают одни и те же правила.
//
// Владельцу доступен только отказ от незавершённого заказа.
var ownerTransitions = map[Status][]Status{
	StatusNew:        {StatusRejected},
	StatusInProgress: {StatusRejected},
	StatusReserved:   {StatusRejected},
	StatusCompleted:  {},
	StatusRejected:   {},
}

// Администратор может перевести заказ из любого статуса в любой другой,
// включая возврат из терминальных — так он исправляет ошибки.
var adminTransitions = buildAdminTransitions()

func buildAdminTransitions() map[Status][]Status {
	m := make(map[Status][]Status, len(KnownStatuses))
	for _, from := range KnownStatuses {
		targets := make([]Status, 0, len(KnownStatuses)-1)
		for _, to := range KnownStatuses {
			if to != from {
				targets = append(targets, to)
			}
		}
		m[from] = targets
	}
	return m
}

// AllowedTargets возвращает допустимые целевые статусы для роли и текущего
// статуса. Для неизвестного статуса список пуст.
func AllowedTargets(role rbac.Role, current Status) []Status {
	var table map[Status][]Status
	switch role {
	case rbac.RoleAdmin:
		table = adminTransitions
	case rbac.RoleClient:
		table = ownerTransitions
	default:
		return nil
	}
	return table[current]
}

// CanTransition проверяет переход по таблице роли. Неизвестный статус с
// любой стороны запрещает переход независимо от роли.
func CanTransition(role rbac.Role, current, target Status) bool {
	if _, err := ParseStatus(string(current)); err != nil {
		return false
	}
	if _, err := ParseStatus(string(target)); err != nil {
		return false
	}
	for _, allowed := range AllowedTargets(role, current) {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanDelete: физическое удаление доступно только для отклонённого заказа.
func CanDelete(current Status) bool {
	return current == StatusRejected
}

// Manager — единственная точка изменения статуса заказа. Каждый успешный
// переход штампует status_datetime.
type Manager struct {
	repo Repository
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// SetStatusAsOwner меняет статус от имени владельца: заказ должен
// принадлежать ownerID, переход проверяется по таблице владельца.
func (m *Manager) SetStatusAsOwner(ctx context.Context, ownerID string, orderID uuid.UUID, rawTarget string) error {
	return m.setStatus(ctx, rbac.RoleClient, ownerID, orderID, rawTarget)
}

// SetStatusAsAdmin меняет статус по административной таблице, без проверки
// владельца.
func (m *Manager) SetStatusAsAdmin(ctx context.Context, orderID uuid.UUID, rawTarget string) error {
	return m.setStatus(ctx, rbac.RoleAdmin, "", orderID, rawTarget)
}

func (m *Manager) setStatus(ctx context.Context, role rbac.Role, ownerID string, orderID uuid.UUID, rawTarget string) error {
	target, err := ParseStatus(rawTarget)
	if err != nil {
		return err
	}

	current, err := m.load(ctx, ownerID, orderID)
	if err != nil {
		return err
	}

	if !CanTransition(role, current.Status, target) {
		log.Warn().
			Stringer("order_id", orderID).
			Str("role", string(role)).
			Str("current_status", string(current.Status)).
			Str("new_status", string(target)).
			Msg("lifecycle: status transition denied")
		return fmt.Errorf("%w: %s -> %s", ErrTransitionDenied, current.Status, target)
	}

	if err := m.repo.UpdateStatus(ctx, orderID, ownerID, target); err != nil {
		return fmt.Errorf("lifecycle: failed to update order status: %w", err)
	}

	log.Info().
		Stringer("order_id", orderID).
		Str("old_status", string(current.Status)).
		Str("new_status", string(target)).
		Msg("lifecycle: order status updated")
	return nil
}

// Delete удаляет заказ владельца; разрешено только для статуса rejected.
func (m *Manager) Delete(ctx context.Context, ownerID string, orderID uuid.UUID) error {
	current, err := m.load(ctx, ownerID, orderID)
	if err != nil {
		return err
	}
	if !CanDelete(current.Status) {
		return ErrDeleteDenied
	}
	if err := m.repo.Delete(ctx, orderID, ownerID); err != nil {
		return fmt.Errorf("lifecycle: failed to delete order: %w", err)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, ownerID string, orderID uuid.UUID) (*Order, error) {
	current, err := m.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && current.OwnerID != ownerID {
		// Чужой заказ неотличим от несуществующего.
		return nil, ErrOrderNotFound
	}
	return current, nil
}
