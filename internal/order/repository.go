package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrOrderNotFound = errors.New("order not found")

// ListFilter — выборка заказов для HTTP-API: по владельцу, от даты,
// постранично.
type ListFilter struct {
	OwnerID  string
	Since    *time.Time
	Page     int
	PageSize int
}

type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, error)
	// UpdateStatus штампует status_datetime; непустой ownerID ограничивает
	// обновление заказами владельца.
	UpdateStatus(ctx context.Context, id uuid.UUID, ownerID string, status Status) error
	Delete(ctx context.Context, id uuid.UUID, ownerID string) error
	DeleteAllByOwner(ctx context.Context, ownerID string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}

	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("repository: failed to encode order items: %w", err)
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.StatusChangedAt = now
	if o.Status == "" {
		o.Status = StatusNew
	}

	query := `
		INSERT INTO orders (id, telegram_id, name, phone, description, items, status, status_datetime, datetime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		o.ID, o.OwnerID, o.Name, o.Phone, o.Description, items, string(o.Status), o.StatusChangedAt, o.CreatedAt,
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("repository: failed to insert order")
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}
	return nil
}

const orderColumns = `id, telegram_id, name, phone, description, items, status, status_datetime, datetime`

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o        Order
		rawItems []byte
		status   string
	)
	err := row.Scan(&o.ID, &o.OwnerID, &o.Name, &o.Phone, &o.Description, &rawItems, &status, &o.StatusChangedAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = Status(status)
	if err := json.Unmarshal(rawItems, &o.Items); err != nil {
		return nil, fmt.Errorf("repository: failed to decode order items: %w", err)
	}
	return &o, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", id, err)
	}
	return o, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE telegram_id = $1 ORDER BY datetime DESC`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for owner %s: %w", ownerID, err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	if pageSize > 1000 {
		pageSize = 1000
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := make([]any, 0, 4)
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		query += fmt.Sprintf(" AND telegram_id = $%d", len(args))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND datetime >= $%d", len(args))
	}
	args = append(args, pageSize)
	query += fmt.Sprintf(" ORDER BY datetime DESC LIMIT $%d", len(args))
	args = append(args, (page-1)*pageSize)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, ownerID string, status Status) error {
	query := `UPDATE orders SET status = $1, status_datetime = $2 WHERE id = $3`
	args := []any{string(status), time.Now().UTC(), id}
	if ownerID != "" {
		query += ` AND telegram_id = $4`
		args = append(args, ownerID)
	}

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", id).Str("new_status", string(status)).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM orders WHERE id = $1 AND telegram_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) DeleteAllByOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM orders WHERE telegram_id = $1`, ownerID); err != nil {
		return fmt.Errorf("repository: failed to delete orders for owner %s: %w", ownerID, err)
	}
	return nil
}
