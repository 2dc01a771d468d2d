package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	// ErrProfileExists — нарушение уникальности telegram_id: повторная
	// регистрация того же аккаунта.
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileNotFound = errors.New("profile not found")
)

// Update — частичное обновление анкеты. nil-поле не трогает колонку.
type Update struct {
	Name       *string
	Phone      *string
	Address    *string
	OrgINN     *string
	OrgTitle   *string
	OrgOGRN    *string
	OrgAddress *string
}

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByTelegramID(ctx context.Context, telegramID string) (*Profile, error)
	Update(ctx context.Context, telegramID string, upd Update) error
	Delete(ctx context.Context, telegramID string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const uniqueViolationCode = "23505"

func (r *postgresRepository) Create(ctx context.Context, p *Profile) error {
	p.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO client (telegram_id, name, phone, address, org_inn, org_title, org_ogrn, org_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		p.TelegramID, p.Name, p.Phone, p.Address, p.OrgINN, p.OrgTitle, p.OrgOGRN, p.OrgAddress, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrProfileExists
		}
		log.Error().Err(err).Str("telegram_id", p.TelegramID).Msg("repository: failed to insert profile")
		return fmt.Errorf("repository: failed to insert profile: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByTelegramID(ctx context.Context, telegramID string) (*Profile, error) {
	query := `
		SELECT id, telegram_id, name, phone, address, org_inn, org_title, org_ogrn, org_address, created_at
		FROM client
		WHERE telegram_id = $1
	`
	var p Profile
	err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&p.ID, &p.TelegramID, &p.Name, &p.Phone, &p.Address,
		&p.OrgINN, &p.OrgTitle, &p.OrgOGRN, &p.OrgAddress, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("repository: failed to select profile %s: %w", telegramID, err)
	}
	return &p, nil
}

func (r *postgresRepository) Update(ctx context.Context, telegramID string, upd Update) error {
	set := make([]string, 0, 7)
	args := make([]any, 0, 8)

	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("name", upd.Name)
	add("phone", upd.Phone)
	add("address", upd.Address)
	add("org_inn", upd.OrgINN)
	add("org_title", upd.OrgTitle)
	add("org_ogrn", upd.OrgOGRN)
	add("org_address", upd.OrgAddress)

	if len(set) == 0 {
		return nil
	}

	args = append(args, telegramID)
	query := fmt.Sprintf("UPDATE client SET %s WHERE telegram_id = $%d", strings.Join(set, ", "), len(args))

	cmdTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		log.Error().Err(err).Str("telegram_id", telegramID).Msg("repository: failed to update profile")
		return fmt.Errorf("repository: failed to update profile: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, telegramID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM client WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return fmt.Errorf("repository: failed to delete profile %s: %w", telegramID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
