package order_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
)

type mockOrderRepository struct {
	createFunc           func(ctx context.Context, o *order.Order) error
	getByIDFunc          func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	listByOwnerFunc      func(ctx context.Context, ownerID string) ([]order.Order, error)
	listFunc             func(ctx context.Context, filter order.ListFilter) ([]order.Order, error)
	updateStatusFunc     func(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error
	deleteFunc           func(ctx context.Context, id uuid.UUID, ownerID string) error
	deleteAllByOwnerFunc func(ctx context.Context, ownerID string) error
}

func (m *mockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	return m.createFunc(ctx, o)
}

func (m *mockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) ListByOwner(ctx context.Context, ownerID string) ([]order.Order, error) {
	return m.listByOwnerFunc(ctx, ownerID)
}

func (m *mockOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	return m.listFunc(ctx, filter)
}

func (m *mockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error {
	return m.updateStatusFunc(ctx, id, ownerID, status)
}

func (m *mockOrderRepository) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	return m.deleteFunc(ctx, id, ownerID)
}

func (m *mockOrderRepository) DeleteAllByOwner(ctx context.Context, ownerID string) error {
	return m.deleteAllByOwnerFunc(ctx, ownerID)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		role    rbac.Role
		current order.Status
		target  order.Status
		want    bool
	}{
		{name: "owner_cancels_new", role: rbac.RoleClient, current: order.StatusNew, target: order.StatusRejected, want: true},
		{name: "owner_cancels_in_progress", role: rbac.RoleClient, current: order.StatusInProgress, target: order.StatusRejected, want: true},
		{name: "owner_cancels_reserved", role: rbac.RoleClient, current: order.StatusReserved, target: order.StatusRejected, want: true},
		{name: "owner_cannot_complete", role: rbac.RoleClient, current: order.StatusNew, target: order.StatusCompleted, want: false},
		{name: "owner_cannot_cancel_completed", role: rbac.RoleClient, current: order.StatusCompleted, target: order.StatusRejected, want: false},
		{name: "owner_cannot_cancel_rejected", role: rbac.RoleClient, current: order.StatusRejected, target: order.StatusRejected, want: false},
		{name: "admin_reopens_completed", role: rbac.RoleAdmin, current: order.StatusCompleted, target: order.StatusNew, want: true},
		{name: "admin_reopens_rejected", role: rbac.RoleAdmin, current: order.StatusRejected, target: order.StatusInProgress, want: true},
		{name: "admin_no_self_transition", role: rbac.RoleAdmin, current: order.StatusNew, target: order.StatusNew, want: false},
		{name: "admin_unknown_target", role: rbac.RoleAdmin, current: order.StatusNew, target: order.Status("shipped"), want: false},
		{name: "admin_unknown_current", role: rbac.RoleAdmin, current: order.Status("shipped"), target: order.StatusNew, want: false},
		{name: "owner_unknown_target", role: rbac.RoleClient, current: order.StatusNew, target: order.Status("shipped"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, order.CanTransition(tt.role, tt.current, tt.target))
		})
	}
}

func TestAdminTransitionsArePairwise(t *testing.T) {
	for _, from := range order.KnownStatuses {
		targets := order.AllowedTargets(rbac.RoleAdmin, from)
		assert.Len(t, targets, len(order.KnownStatuses)-1, "из %s администратору доступны все прочие статусы", from)
		assert.NotContains(t, targets, from)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := order.ParseStatus("  In_Progress ")
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, s)

	_, err = order.ParseStatus("shipped")
	assert.ErrorIs(t, err, order.ErrUnknownStatus)
}

func TestManager_SetStatus(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	t.Run("admin_completed_to_in_progress_succeeds_owner_denied", func(t *testing.T) {
		stored := &order.Order{ID: orderID, OwnerID: "42", Status: order.StatusCompleted}
		var updatedTo order.Status
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return stored, nil },
			updateStatusFunc: func(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error {
				updatedTo = status
				return nil
			},
		}
		m := order.NewManager(repo)

		require.NoError(t, m.SetStatusAsAdmin(context.Background(), orderID, "in_progress"))
		assert.Equal(t, order.StatusInProgress, updatedTo)

		// Тот же переход от имени владельца запрещён.
		err := m.SetStatusAsOwner(context.Background(), "42", orderID, "in_progress")
		assert.ErrorIs(t, err, order.ErrTransitionDenied)
	})

	t.Run("unknown_status_rejected_before_load", func(t *testing.T) {
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
				t.Fatal("заказ не должен загружаться для неизвестного статуса")
				return nil, nil
			},
		}
		m := order.NewManager(repo)
		err := m.SetStatusAsAdmin(context.Background(), orderID, "shipped")
		assert.ErrorIs(t, err, order.ErrUnknownStatus)
	})

	t.Run("foreign_order_looks_missing", func(t *testing.T) {
		stored := &order.Order{ID: orderID, OwnerID: "42", Status: order.StatusNew}
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return stored, nil },
		}
		m := order.NewManager(repo)
		err := m.SetStatusAsOwner(context.Background(), "99", orderID, "rejected")
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})

	t.Run("transition_stamps_through_repo", func(t *testing.T) {
		stored := &order.Order{ID: orderID, OwnerID: "42", Status: order.StatusNew}
		called := false
		repo := &mockOrderRepository{
			getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) { return stored, nil },
			updateStatusFunc: func(ctx context.Context, id uuid.UUID, ownerID string, status order.Status) error {
				called = true
				assert.Equal(t, "42", ownerID)
				assert.Equal(t, order.StatusRejected, status)
				return nil
			},
		}
		m := order.NewManager(repo)
		require.NoError(t, m.SetStatusAsOwner(context.Background(), "42", orderID, "rejected"))
		assert.True(t, called)
	})
}

func TestManager_Delete(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		status     order.Status
		wantErr    error
		wantDelete bool
	}{
		{name: "rejected_deletable", status: order.StatusRejected, wantDelete: true},
		{name: "new_not_deletable", status: order.StatusNew, wantErr: order.ErrDeleteDenied},
		{name: "completed_not_deletable", status: order.StatusCompleted, wantErr: order.ErrDeleteDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deleted := false
			repo := &mockOrderRepository{
				getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
					return &order.Order{ID: orderID, OwnerID: "42", Status: tt.status}, nil
				},
				deleteFunc: func(ctx context.Context, id uuid.UUID, ownerID string) error {
					deleted = true
					return nil
				},
			}
			m := order.NewManager(repo)
			err := m.Delete(context.Background(), "42", orderID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantDelete, deleted, "удаление строки должно происходить только для rejected")
		})
	}
}
