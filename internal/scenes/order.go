package scenes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
)

const (
	deliveryPickup  = "pickup"
	deliveryCourier = "courier"
)

// orderArgs — вход в сцену заказа из выдачи поиска.
type orderArgs struct {
	Article catalog.Article
	Return  *searchSnapshot
}

// orderResume — возврат в сцену заказа после регистрации: всё собранное
// до приостановки состояние передаётся как есть.
type orderResume struct {
	State orderState
}

// orderState — состояние оформления. OrderID заполняется после успешной
// записи заказа и служит маркером завершённости при повторной доставке
// события.
type orderState struct {
	Item         order.LineItem       `json:"item"`
	Availability catalog.Availability `json:"availability"`
	Delivery     string               `json:"delivery,omitempty"`
	Address      string               `json:"address,omitempty"`
	Name         string               `json:"name,omitempty"`
	Phone        string               `json:"phone,omitempty"`
	OrderID      string               `json:"order_id,omitempty"`
	Return       *searchSnapshot      `json:"return,omitempty"`
}

func orderScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneOrder,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if resume, ok := c.Args.(*orderResume); ok {
					if err := c.SetState(&resume.State); err != nil {
						return engine.Stay(), err
					}
					if err := promptDelivery(ctx, c); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("delivery"), nil
				}

				args, ok := c.Args.(*orderArgs)
				if !ok {
					return engine.Enter(SceneSearch, nil), nil
				}
				a := args.Article
				st := orderState{
					Item: order.LineItem{
						Number:         a.Number,
						Title:          a.Description,
						Price:          a.Price,
						Brand:          a.Brand,
						DistributorID:  a.DistributorID,
						SupplierCode:   a.SupplierCode,
						LastUpdateTime: a.LastUpdateTime,
					},
					Availability: a.Availability,
					Return:       args.Return,
				}
				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}

				text := fmt.Sprintf("Оформляем %s %s\nЦена: %s ₽, наличие: %s\n\nУкажите количество.",
					a.Brand, a.Number, a.Price.StringFixed(2), a.Availability.Display)
				reply := chat.TextReply(text).WithRow(chat.Button{Text: "Отмена", Payload: "cancel"})
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "quantity", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st orderState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				if c.Event.Callback == "cancel" {
					// Возврат к той же выдаче без нового запроса к каталогу.
					if st.Return != nil {
						return engine.Enter(SceneSearch, st.Return), nil
					}
					return engine.Enter(SceneSearch, nil), nil
				}

				qty, err := strconv.Atoi(strings.TrimSpace(c.Event.Text))
				if err != nil || qty < 1 {
					if err := c.Reply(ctx, chat.TextReply("Введите количество целым числом больше нуля.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}
				if !st.Availability.AllowsQuantity(qty) {
					text := fmt.Sprintf("В наличии только %d шт. Укажите количество не больше.", st.Availability.Qty)
					if err := c.Reply(ctx, chat.TextReply(text)); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}

				st.Item.Count = qty
				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				if err := promptDelivery(ctx, c); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "delivery", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st orderState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				var method string
				switch c.Event.Callback {
				case "delivery:pickup":
					method = deliveryPickup
				case "delivery:courier":
					method = deliveryCourier
				default:
					return engine.Stay(), nil
				}

				// Незарегистрированный клиент уходит в регистрацию; собранный
				// заказ едет с ним и возвращается на этот же шаг.
				prof, err := d.Profiles.Get(ctx, c.Session.Identity)
				if err != nil {
					if errors.Is(err, profile.ErrProfileNotFound) {
						if err := c.Reply(ctx, chat.TextReply("Для оформления заказа нужна регистрация.")); err != nil {
							return engine.Stay(), err
						}
						return engine.Enter(SceneRegistration, &registrationArgs{ResumeOrder: &st}), nil
					}
					return engine.Stay(), fmt.Errorf("scenes: failed to load profile: %w", err)
				}

				st.Delivery = method
				if method == deliveryPickup {
					st.Address = ""
					if err := c.SetState(&st); err != nil {
						return engine.Stay(), err
					}
					if err := promptContact(ctx, c, prof); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("contact"), nil
				}

				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				reply := chat.TextReply("Куда доставить? Введите адрес пункта выдачи.")
				if prof.Address != "" {
					reply = reply.WithRow(chat.Button{Text: "Мой адрес: " + prof.Address, Payload: "addr:saved"})
				}
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "address", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st orderState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				prof, err := d.Profiles.Get(ctx, c.Session.Identity)
				if err != nil {
					return engine.Stay(), fmt.Errorf("scenes: failed to load profile: %w", err)
				}

				switch {
				case c.Event.Callback == "addr:saved" && prof.Address != "":
					st.Address = prof.Address
				case strings.TrimSpace(c.Event.Text) != "":
					st.Address = strings.TrimSpace(c.Event.Text)
				default:
					return engine.Stay(), nil
				}

				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				if err := promptContact(ctx, c, prof); err != nil {
					return engine.Stay(), err
				}
				return engine.Goto("contact"), nil
			}},
			{Name: "contact", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st orderState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}

				// Повторная доставка события после успешной записи: заказ уже
				// оформлен, второго не создаём.
				if st.OrderID != "" {
					if err := c.Reply(ctx, chat.TextReply("Заказ уже оформлен, номер "+st.OrderID+".")); err != nil {
						return engine.Stay(), err
					}
					return engine.Leave(), nil
				}

				switch {
				case c.Event.Callback == "contact:profile":
					prof, err := d.Profiles.Get(ctx, c.Session.Identity)
					if err != nil {
						return engine.Stay(), fmt.Errorf("scenes: failed to load profile: %w", err)
					}
					st.Name, st.Phone = prof.Name, prof.Phone
				case c.Event.Contact != nil:
					st.Name, st.Phone = c.Event.Contact.Name, c.Event.Contact.Phone
				case strings.TrimSpace(c.Event.Text) != "":
					name, phone, ok := parseContactLine(c.Event.Text)
					if !ok {
						if err := c.Reply(ctx, chat.TextReply("Не разобрал контакт. Введите в формате: Имя, телефон.")); err != nil {
							return engine.Stay(), err
						}
						return engine.Stay(), nil
					}
					st.Name, st.Phone = name, phone
				default:
					return engine.Stay(), nil
				}

				return commitOrder(ctx, c, d, &st)
			}},
		},
	}
}

func promptDelivery(ctx context.Context, c *engine.Context) error {
	reply := chat.TextReply("Как получить заказ?").
		WithRow(chat.Button{Text: "Самовывоз", Payload: "delivery:pickup"}).
		WithRow(chat.Button{Text: "Доставка в пункт выдачи", Payload: "delivery:courier"})
	return c.Reply(ctx, reply)
}

func promptContact(ctx context.Context, c *engine.Context, prof *profile.Profile) error {
	reply := chat.TextReply("Контакт для связи: отправьте контакт, либо введите «Имя, телефон».")
	if prof != nil && prof.Name != "" && prof.Phone != "" {
		reply = reply.WithRow(chat.Button{
			Text:    fmt.Sprintf("Из профиля: %s, %s", prof.Name, prof.Phone),
			Payload: "contact:profile",
		})
	}
	return c.Reply(ctx, reply)
}

// parseContactLine разбирает строку вида "Имя, +7900...".
func parseContactLine(text string) (name, phone string, ok bool) {
	parts := strings.SplitN(text, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	name = strings.TrimSpace(parts[0])
	phone = strings.TrimSpace(parts[1])
	if name == "" || !validPhone(phone) {
		return "", "", false
	}
	return name, phone, true
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '(' || r == ')' || r == '-':
		default:
			return false
		}
	}
	return digits >= 10
}

// commitOrder записывает заказ и шлёт уведомление менеджеру. Порядок жёсткий:
// сначала запись, потом уведомление. Сбой уведомления не отменяет заказ и
// пользователю не показывается.
func commitOrder(ctx context.Context, c *engine.Context, d Deps, st *orderState) (engine.Outcome, error) {
	description := "Самовывоз"
	if st.Delivery == deliveryCourier {
		description = "Доставка: " + st.Address
	}
	o := &order.Order{
		OwnerID:     c.Session.Identity,
		Name:        st.Name,
		Phone:       st.Phone,
		Description: description,
		Items:       []order.LineItem{st.Item},
		Status:      order.StatusNew,
	}

	if err := d.Orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("identity", c.Session.Identity).Msg("scenes: failed to persist order")
		if err := c.Reply(ctx, chat.TextReply("Не получилось оформить заказ. Попробуйте ещё раз.")); err != nil {
			return engine.Stay(), err
		}
		return engine.Stay(), nil
	}

	st.OrderID = o.ID.String()
	if err := c.SetState(st); err != nil {
		return engine.Stay(), err
	}

	if err := d.Notifier.NewOrder(ctx, o); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("scenes: order notification failed")
	}

	text := fmt.Sprintf("Заказ оформлен!\n%s %s x%d\nИтого: %s ₽\nНомер заказа: %s",
		st.Item.Brand, st.Item.Number, st.Item.Count, o.Total().StringFixed(2), o.ID)
	if err := c.Reply(ctx, chat.TextReply(text)); err != nil {
		return engine.Stay(), err
	}
	return engine.Leave(), nil
}
