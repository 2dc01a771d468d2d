package scenes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
)

var statusTitles = map[order.Status]string{
	order.StatusNew:        "Новый",
	order.StatusInProgress: "В работе",
	order.StatusReserved:   "Зарезервирован",
	order.StatusCompleted:  "Выполнен",
	order.StatusRejected:   "Отклонён",
}

type ordersState struct {
	// Filter — выбранный статус; пусто означает «все заказы».
	Filter string `json:"filter,omitempty"`
}

func ordersScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneOrders,
		Steps: []engine.Step{
			{Name: "summary", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				orders, err := d.Orders.ListByOwner(ctx, c.Session.Identity)
				if err != nil {
					return engine.Stay(), fmt.Errorf("scenes: failed to list orders: %w", err)
				}
				if len(orders) == 0 {
					reply := chat.TextReply("У вас пока нет заказов.").
						WithRow(chat.Button{Text: "Поиск", Payload: "go:search"})
					if err := c.Reply(ctx, reply); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("pick"), nil
				}

				counts := make(map[order.Status]int, len(statusTitles))
				for _, o := range orders {
					counts[o.Status]++
				}
				reply := chat.TextReply(fmt.Sprintf("Ваши заказы: %d", len(orders)))
				for _, s := range order.KnownStatuses {
					if counts[s] == 0 {
						continue
					}
					reply = reply.WithRow(chat.Button{
						Text:    fmt.Sprintf("%s: %d", statusTitles[s], counts[s]),
						Payload: "flt:" + s.String(),
					})
				}
				reply = reply.WithRow(chat.Button{Text: "Все", Payload: "flt:all"})
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Goto("pick"), nil
			}},
			{Name: "pick", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if c.Event.Callback == "go:search" {
					return engine.Enter(SceneSearch, nil), nil
				}
				if !strings.HasPrefix(c.Event.Callback, "flt:") {
					return engine.Stay(), nil
				}
				filter := strings.TrimPrefix(c.Event.Callback, "flt:")
				if filter == "all" {
					filter = ""
				}
				st := ordersState{Filter: filter}
				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				if err := renderOrderCards(ctx, c, d, filter); err != nil {
					return engine.Stay(), err
				}
				return engine.Goto("actions"), nil
			}},
			{Name: "actions", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st ordersState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				switch {
				case c.Event.Callback == "back":
					return engine.Reenter(), nil
				case strings.HasPrefix(c.Event.Callback, "cancel:"):
					id, err := uuid.FromString(strings.TrimPrefix(c.Event.Callback, "cancel:"))
					if err != nil {
						return engine.Stay(), nil
					}
					if err := d.Lifecycle.SetStatusAsOwner(ctx, c.Session.Identity, id, order.StatusRejected.String()); err != nil {
						log.Warn().Err(err).Stringer("order_id", id).Msg("scenes: owner cancel denied")
						if err := c.Reply(ctx, chat.TextReply("Этот заказ отменить нельзя.")); err != nil {
							return engine.Stay(), err
						}
						return engine.Stay(), nil
					}
					if err := c.Reply(ctx, chat.TextReply("Заказ отменён.")); err != nil {
						return engine.Stay(), err
					}
					if err := renderOrderCards(ctx, c, d, st.Filter); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				case strings.HasPrefix(c.Event.Callback, "delete:"):
					id, err := uuid.FromString(strings.TrimPrefix(c.Event.Callback, "delete:"))
					if err != nil {
						return engine.Stay(), nil
					}
					if err := d.Lifecycle.Delete(ctx, c.Session.Identity, id); err != nil {
						if errors.Is(err, order.ErrDeleteDenied) {
							if err := c.Reply(ctx, chat.TextReply("Удалить можно только отклонённый заказ.")); err != nil {
								return engine.Stay(), err
							}
							return engine.Stay(), nil
						}
						return engine.Stay(), fmt.Errorf("scenes: failed to delete order: %w", err)
					}
					if err := c.Reply(ctx, chat.TextReply("Заказ удалён.")); err != nil {
						return engine.Stay(), err
					}
					if err := renderOrderCards(ctx, c, d, st.Filter); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}
				return engine.Stay(), nil
			}},
		},
	}
}

// renderOrderCards рисует карточки заказов владельца с действиями,
// допустимыми таблицей переходов владельца.
func renderOrderCards(ctx context.Context, c *engine.Context, d Deps, filter string) error {
	orders, err := d.Orders.ListByOwner(ctx, c.Session.Identity)
	if err != nil {
		return fmt.Errorf("scenes: failed to list orders: %w", err)
	}

	shown := 0
	for _, o := range orders {
		if filter != "" && o.Status.String() != filter {
			continue
		}
		shown++

		var b strings.Builder
		fmt.Fprintf(&b, "Заказ %s от %s\n", o.ID, o.CreatedAt.Format("02.01.2006"))
		for _, item := range o.Items {
			fmt.Fprintf(&b, "%s %s x%d по %s ₽\n", item.Brand, item.Number, item.Count, item.Price.StringFixed(2))
		}
		fmt.Fprintf(&b, "Итого: %s ₽\nСтатус: %s", o.Total().StringFixed(2), statusTitles[o.Status])

		reply := chat.TextReply(b.String())
		var row []chat.Button
		for _, target := range order.AllowedTargets(rbac.RoleClient, o.Status) {
			if target == order.StatusRejected {
				row = append(row, chat.Button{Text: "Отменить", Payload: "cancel:" + o.ID.String()})
			}
		}
		if order.CanDelete(o.Status) {
			row = append(row, chat.Button{Text: "Удалить", Payload: "delete:" + o.ID.String()})
		}
		if len(row) > 0 {
			reply = reply.WithRow(row...)
		}
		if err := c.Reply(ctx, reply); err != nil {
			return err
		}
	}

	if shown == 0 {
		return c.Reply(ctx, chat.TextReply("Заказов с таким статусом нет.").WithRow(chat.Button{Text: "Назад", Payload: "back"}))
	}
	return c.Reply(ctx, chat.TextReply("Это все заказы.").WithRow(chat.Button{Text: "Назад", Payload: "back"}))
}
