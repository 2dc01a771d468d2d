// Package history хранит последние поисковые запросы клиента для
// быстрого повтора из сцены поиска.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Entry struct {
	TelegramID   string    `json:"telegram_id"`
	Query        string    `json:"query"`
	ResultsCount int       `json:"results_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Repository interface {
	Add(ctx context.Context, entry Entry) error
	// Last возвращает до n последних запросов, новые первыми.
	Last(ctx context.Context, telegramID string, n int) ([]Entry, error)
	Clear(ctx context.Context, telegramID string) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Add(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO search_history (telegram_id, query, results_count, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.Exec(ctx, query, entry.TelegramID, entry.Query, entry.ResultsCount, entry.CreatedAt); err != nil {
		return fmt.Errorf("repository: failed to insert search history entry: %w", err)
	}
	return nil
}

func (r *postgresRepository) Last(ctx context.Context, telegramID string, n int) ([]Entry, error) {
	if n < 1 {
		n = 5
	}
	query := `
		SELECT telegram_id, query, results_count, created_at
		FROM search_history
		WHERE telegram_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, telegramID, n)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query search history for %s: %w", telegramID, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, n)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TelegramID, &e.Query, &e.ResultsCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository: failed to scan search history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating search history: %w", err)
	}
	return entries, nil
}

func (r *postgresRepository) Clear(ctx context.Context, telegramID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM search_history WHERE telegram_id = $1`, telegramID); err != nil {
		return fmt.Errorf("repository: failed to clear search history for %s: %w", telegramID, err)
	}
	return nil
}
