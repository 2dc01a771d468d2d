package scenes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
)

const distributorsPerPage = 5

func adminScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneAdmin,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if !d.Roles.IsAdmin(c.Session.Identity) {
					if err := c.Reply(ctx, chat.TextReply("Недостаточно прав.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Enter(SceneMenu, nil), nil
				}
				reply := chat.TextReply("Админка").
					WithRow(chat.Button{Text: "Последние заказы", Payload: "adm:orders"}).
					WithRow(chat.Button{Text: "Поставщики", Payload: "adm:dist"}).
					WithRow(chat.Button{Text: "Настройки", Payload: "adm:settings"})
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "menu", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				switch c.Event.Callback {
				case "adm:orders":
					if err := renderAdminOrders(ctx, c, d); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("orders"), nil
				case "adm:dist":
					if err := renderDistributorsPage(ctx, c, d, 0); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("distributors"), nil
				case "adm:settings":
					text := "Изменение настройки, три строки:\nкатегория\nключ\nзначение"
					if err := c.Reply(ctx, chat.TextReply(text)); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("settings"), nil
				}
				return engine.Stay(), nil
			}},
			{Name: "orders", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if c.Event.Callback == "back" {
					return engine.Reenter(), nil
				}
				// st:<orderID>:<status>
				if !strings.HasPrefix(c.Event.Callback, "st:") {
					return engine.Stay(), nil
				}
				parts := strings.SplitN(strings.TrimPrefix(c.Event.Callback, "st:"), ":", 2)
				if len(parts) != 2 {
					return engine.Stay(), nil
				}
				id, err := uuid.FromString(parts[0])
				if err != nil {
					return engine.Stay(), nil
				}

				if err := d.Lifecycle.SetStatusAsAdmin(ctx, id, parts[1]); err != nil {
					switch {
					case errors.Is(err, order.ErrUnknownStatus):
						if err := c.Reply(ctx, chat.TextReply("Неизвестный статус.")); err != nil {
							return engine.Stay(), err
						}
					case errors.Is(err, order.ErrTransitionDenied), errors.Is(err, order.ErrOrderNotFound):
						if err := c.Reply(ctx, chat.TextReply("Перевести заказ в этот статус нельзя.")); err != nil {
							return engine.Stay(), err
						}
					default:
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}
				if err := c.Reply(ctx, chat.TextReply(fmt.Sprintf("Заказ %s переведён в статус «%s».", id, statusTitles[order.Status(parts[1])]))); err != nil {
					return engine.Stay(), err
				}
				if err := renderAdminOrders(ctx, c, d); err != nil {
					return engine.Stay(), err
				}
				return engine.Stay(), nil
			}},
			{Name: "distributors", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if c.Event.Callback == "back" {
					return engine.Reenter(), nil
				}
				if strings.HasPrefix(c.Event.Callback, "page:") {
					page, err := strconv.Atoi(strings.TrimPrefix(c.Event.Callback, "page:"))
					if err != nil || page < 0 {
						return engine.Stay(), nil
					}
					if err := renderDistributorsPage(ctx, c, d, page); err != nil {
						return engine.Stay(), err
					}
				}
				return engine.Stay(), nil
			}},
			{Name: "settings", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				lines := strings.Split(strings.TrimSpace(c.Event.Text), "\n")
				if len(lines) != 3 {
					if err := c.Reply(ctx, chat.TextReply("Нужно три строки: категория, ключ, значение.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}
				category := strings.TrimSpace(lines[0])
				key := strings.TrimSpace(lines[1])
				value := strings.TrimSpace(lines[2])
				if category == "" || key == "" {
					if err := c.Reply(ctx, chat.TextReply("Категория и ключ не могут быть пустыми.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}

				if err := d.Settings.Set(ctx, category, key, value, c.Session.Identity); err != nil {
					log.Error().Err(err).Str("category", category).Str("key", key).Msg("scenes: failed to update setting")
					if err := c.Reply(ctx, chat.TextReply("Не получилось сохранить настройку.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}
				if err := c.Reply(ctx, chat.TextReply(fmt.Sprintf("Настройка %s/%s обновлена.", category, key))); err != nil {
					return engine.Stay(), err
				}
				return engine.Reenter(), nil
			}},
		},
	}
}

// renderAdminOrders показывает последние заказы с кнопками перевода в любой
// другой известный статус.
func renderAdminOrders(ctx context.Context, c *engine.Context, d Deps) error {
	orders, err := d.Orders.List(ctx, order.ListFilter{Page: 1, PageSize: 5})
	if err != nil {
		return fmt.Errorf("scenes: failed to list orders for admin: %w", err)
	}
	if len(orders) == 0 {
		return c.Reply(ctx, chat.TextReply("Заказов нет.").WithRow(chat.Button{Text: "Назад", Payload: "back"}))
	}

	for _, o := range orders {
		var b strings.Builder
		fmt.Fprintf(&b, "Заказ %s от %s\nКлиент: %s, %s\n", o.ID, o.CreatedAt.Format("02.01.2006 15:04"), o.Name, o.Phone)
		for _, item := range o.Items {
			fmt.Fprintf(&b, "%s %s x%d\n", item.Brand, item.Number, item.Count)
		}
		fmt.Fprintf(&b, "Статус: %s", statusTitles[o.Status])

		reply := chat.TextReply(b.String())
		for _, target := range order.AllowedTargets(rbac.RoleAdmin, o.Status) {
			reply = reply.WithRow(chat.Button{
				Text:    "→ " + statusTitles[target],
				Payload: fmt.Sprintf("st:%s:%s", o.ID, target),
			})
		}
		if err := c.Reply(ctx, reply); err != nil {
			return err
		}
	}
	return c.Reply(ctx, chat.TextReply("Конец списка.").WithRow(chat.Button{Text: "Назад", Payload: "back"}))
}

// renderDistributorsPage листает кэшированный список поставщиков.
func renderDistributorsPage(ctx context.Context, c *engine.Context, d Deps, page int) error {
	list := d.Distributors.Get(ctx)
	if len(list) == 0 {
		return c.Reply(ctx, chat.TextReply("Список поставщиков недоступен.").WithRow(chat.Button{Text: "Назад", Payload: "back"}))
	}

	start := page * distributorsPerPage
	if start >= len(list) {
		start = 0
		page = 0
	}
	end := start + distributorsPerPage
	if end > len(list) {
		end = len(list)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Поставщики %d–%d из %d\n\n", start+1, end, len(list))
	for _, dist := range list[start:end] {
		enabled := "выключен"
		if dist.IsEnabled {
			enabled = "включен"
		}
		fmt.Fprintf(&b, "%s (%s)\nКонтрагент: %s\nПозиций: %d, %s\nОбновлён: %s\n\n",
			dist.Name, dist.ID, dist.Contractor, dist.PositionsNumber, enabled, dist.UpdateTime)
	}

	reply := chat.TextReply(strings.TrimRight(b.String(), "\n"))
	var nav []chat.Button
	if page > 0 {
		nav = append(nav, chat.Button{Text: "« Назад", Payload: "page:" + strconv.Itoa(page-1)})
	}
	if end < len(list) {
		nav = append(nav, chat.Button{Text: "Вперёд »", Payload: "page:" + strconv.Itoa(page+1)})
	}
	if len(nav) > 0 {
		reply = reply.WithRow(nav...)
	}
	return c.Reply(ctx, reply.WithRow(chat.Button{Text: "В меню", Payload: "back"}))
}
