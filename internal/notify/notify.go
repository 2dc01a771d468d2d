// Package notify отправляет менеджеру уведомления о новых заказах и
// регистрациях. Канал менеджера берётся из настроек (manager /
// telegram_user_id) с откатом на значение из конфигурации.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
	"github.com/vasiliy-maslov/partsbot/internal/settings"
)

type Notifier interface {
	NewOrder(ctx context.Context, o *order.Order) error
	NewRegistration(ctx context.Context, p *profile.Profile) error
}

type ChatNotifier struct {
	sender   chat.Sender
	settings *settings.Service
	// fallbackChatID используется, когда настройка канала не задана.
	fallbackChatID string
}

func NewChatNotifier(sender chat.Sender, st *settings.Service, fallbackChatID string) *ChatNotifier {
	return &ChatNotifier{sender: sender, settings: st, fallbackChatID: fallbackChatID}
}

func (n *ChatNotifier) managerChatID(ctx context.Context) (string, error) {
	id, err := n.settings.Get(ctx, "manager", "telegram_user_id")
	if err == nil && id != "" {
		return id, nil
	}
	if n.fallbackChatID != "" {
		return n.fallbackChatID, nil
	}
	return "", fmt.Errorf("notify: manager chat is not configured: %w", err)
}

func (n *ChatNotifier) NewOrder(ctx context.Context, o *order.Order) error {
	chatID, err := n.managerChatID(ctx)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Новый заказ %s\n", o.ID)
	fmt.Fprintf(&b, "Клиент: %s, %s\n", o.Name, o.Phone)
	for _, item := range o.Items {
		fmt.Fprintf(&b, "— %s %s x%d по %s ₽\n", item.Brand, item.Number, item.Count, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "Итого: %s ₽", o.Total().StringFixed(2))
	if o.Description != "" {
		fmt.Fprintf(&b, "\nКомментарий: %s", o.Description)
	}

	if err := n.sender.Send(ctx, chatID, chat.TextReply(b.String())); err != nil {
		return fmt.Errorf("notify: failed to send new order notification: %w", err)
	}
	log.Info().Stringer("order_id", o.ID).Str("manager_chat", chatID).Msg("notify: new order notification sent")
	return nil
}

func (n *ChatNotifier) NewRegistration(ctx context.Context, p *profile.Profile) error {
	chatID, err := n.managerChatID(ctx)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("Новая регистрация\nИмя: %s\nТелефон: %s\nTelegram: %s", p.Name, p.Phone, p.TelegramID)
	if err := n.sender.Send(ctx, chatID, chat.TextReply(text)); err != nil {
		return fmt.Errorf("notify: failed to send registration notification: %w", err)
	}
	return nil
}
