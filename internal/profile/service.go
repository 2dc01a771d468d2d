package profile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/history"
	"github.com/vasiliy-maslov/partsbot/internal/order"
)

// Service — операции над анкетой, затрагивающие соседние данные клиента.
type Service struct {
	profiles Repository
	orders   order.Repository
	history  history.Repository
}

func NewService(profiles Repository, orders order.Repository, hist history.Repository) *Service {
	return &Service{profiles: profiles, orders: orders, history: hist}
}

func (s *Service) Create(ctx context.Context, p *Profile) error {
	return s.profiles.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, telegramID string) (*Profile, error) {
	return s.profiles.GetByTelegramID(ctx, telegramID)
}

func (s *Service) Update(ctx context.Context, telegramID string, upd Update) error {
	return s.profiles.Update(ctx, telegramID, upd)
}

// Delete удаляет анкету. При withData заодно чистит заказы и историю
// поиска клиента. Анкета удаляется последней: если чистка сорвалась,
// клиент остаётся зарегистрированным и может повторить.
func (s *Service) Delete(ctx context.Context, telegramID string, withData bool) error {
	if withData {
		if err := s.orders.DeleteAllByOwner(ctx, telegramID); err != nil {
			return fmt.Errorf("service: failed to delete client orders: %w", err)
		}
		if err := s.history.Clear(ctx, telegramID); err != nil {
			return fmt.Errorf("service: failed to clear client search history: %w", err)
		}
	}
	if err := s.profiles.Delete(ctx, telegramID); err != nil {
		return err
	}
	log.Info().Str("telegram_id", telegramID).Bool("with_data", withData).Msg("service: profile deleted")
	return nil
}
