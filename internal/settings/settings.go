// Package settings — значения (категория, ключ) с журналом изменений.
// Чтение идёт через Redis-кэш, запись инвалидирует ключ. Когда значения
// нет ни в кэше, ни в базе, пробуем переменную окружения
// SETTINGS_<CATEGORY>_<KEY>.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var ErrSettingNotFound = errors.New("setting not found")

// Tx — то, что нужно записи настройки от транзакции.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB — то, что нужно сервису от базы. В проде за интерфейсом стоит pgxpool.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (Tx, error)
}

type poolDB struct {
	pool *pgxpool.Pool
}

func (p poolDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p poolDB) Begin(ctx context.Context) (Tx, error) {
	return p.pool.Begin(ctx)
}

type Service struct {
	db       DB
	cache    *redis.Client
	cacheTTL time.Duration
}

func NewService(pool *pgxpool.Pool, cache *redis.Client, cacheTTL time.Duration) *Service {
	return &Service{db: poolDB{pool: pool}, cache: cache, cacheTTL: cacheTTL}
}

func cacheKey(category, key string) string {
	return "settings:" + category + ":" + key
}

func envKey(category, key string) string {
	normalize := func(s string) string {
		return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	}
	return "SETTINGS_" + normalize(category) + "_" + normalize(key)
}

// Get возвращает значение настройки. Кэш, затем база, затем окружение.
// Сбой кэша не фатален: идём в базу и логируем.
func (s *Service) Get(ctx context.Context, category, key string) (string, error) {
	if s.cache != nil {
		value, err := s.cache.Get(ctx, cacheKey(category, key)).Result()
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("category", category).Str("key", key).Msg("settings: cache read failed")
		}
	}

	var value string
	query := `SELECT value FROM bot_settings WHERE category = $1 AND key = $2`
	err := s.db.QueryRow(ctx, query, category, key).Scan(&value)
	switch {
	case err == nil:
		s.fillCache(ctx, category, key, value)
		return value, nil
	case errors.Is(err, pgx.ErrNoRows):
		if env, ok := os.LookupEnv(envKey(category, key)); ok {
			return env, nil
		}
		return "", ErrSettingNotFound
	default:
		return "", fmt.Errorf("settings: failed to select %s/%s: %w", category, key, err)
	}
}

func (s *Service) fillCache(ctx context.Context, category, key, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(category, key), value, s.cacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("category", category).Str("key", key).Msg("settings: cache write failed")
	}
}

// Set создаёт или обновляет настройку, пишет запись в журнал и сбрасывает
// кэш. Журнал только дописывается, старые значения не переписываются.
func (s *Service) Set(ctx context.Context, category, key, value, changedBy string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("settings: failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Msg("settings: failed to rollback transaction")
			}
		}
	}()

	var previous string
	selectErr := tx.QueryRow(ctx, `SELECT value FROM bot_settings WHERE category = $1 AND key = $2`, category, key).Scan(&previous)
	if selectErr != nil && !errors.Is(selectErr, pgx.ErrNoRows) {
		err = fmt.Errorf("settings: failed to select current value: %w", selectErr)
		return err
	}

	upsert := `
		INSERT INTO bot_settings (category, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (category, key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err = tx.Exec(ctx, upsert, category, key, value, time.Now().UTC()); err != nil {
		err = fmt.Errorf("settings: failed to upsert %s/%s: %w", category, key, err)
		return err
	}

	audit := `
		INSERT INTO settings_audit (category, key, old_value, new_value, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err = tx.Exec(ctx, audit, category, key, previous, value, changedBy, time.Now().UTC()); err != nil {
		err = fmt.Errorf("settings: failed to insert audit record: %w", err)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		err = fmt.Errorf("settings: failed to commit transaction: %w", err)
		return err
	}

	if s.cache != nil {
		if delErr := s.cache.Del(ctx, cacheKey(category, key)).Err(); delErr != nil {
			log.Warn().Err(delErr).Str("category", category).Str("key", key).Msg("settings: cache invalidation failed")
		}
	}

	log.Info().Str("category", category).Str("key", key).Str("changed_by", changedBy).Msg("settings: value updated")
	return nil
}
