// Package scenes — прикладные диалоговые сценарии поверх движка: поиск по
// каталогу, оформление заказа, регистрация, профиль, список заказов и
// административное меню.
package scenes

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/history"
	"github.com/vasiliy-maslov/partsbot/internal/notify"
	"github.com/vasiliy-maslov/partsbot/internal/order"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
	"github.com/vasiliy-maslov/partsbot/internal/rbac"
	"github.com/vasiliy-maslov/partsbot/internal/session"
	"github.com/vasiliy-maslov/partsbot/internal/settings"
)

// Идентификаторы сцен.
const (
	SceneMenu         = "menu"
	SceneSearch       = "search"
	SceneOrder        = "order"
	SceneRegistration = "registration"
	SceneProfile      = "profile"
	SceneOrders       = "orders"
	SceneAdmin        = "admin"
	SceneInfo         = "info"
)

// Deps — всё, что нужно сценам от остального приложения.
type Deps struct {
	Catalog      catalog.Gateway
	Distributors *catalog.DistributorCache
	Orders       order.Repository
	Lifecycle    *order.Manager
	Profiles     *profile.Service
	History      history.Repository
	Settings     *settings.Service
	Notifier     notify.Notifier
	Roles        *rbac.Resolver
}

// RegisterAll регистрирует все сцены приложения в движке.
func RegisterAll(e *engine.Engine, d Deps) {
	e.Register(menuScene(d))
	e.Register(searchScene(d))
	e.Register(orderScene(d))
	e.Register(registrationScene(d))
	e.Register(profileScene(d))
	e.Register(ordersScene(d))
	e.Register(adminScene(d))
	e.Register(infoScene(d))
}

// Interceptors — глобальные команды, выбивающие сессию из любой сцены.
func Interceptors() []engine.Interceptor {
	matchAny := func(texts ...string) func(chat.Event) bool {
		return func(ev chat.Event) bool {
			for _, t := range texts {
				if strings.EqualFold(strings.TrimSpace(ev.Text), t) {
					return true
				}
			}
			return false
		}
	}
	return []engine.Interceptor{
		{Match: matchAny("/start", "/cancel", "Отмена", "Меню", "Главное меню"), Scene: SceneMenu},
		{Match: matchAny("/search", "Поиск", "Новый поиск"), Scene: SceneSearch},
		{Match: matchAny("Регистрация"), Scene: SceneRegistration},
		{Match: matchAny("Профиль"), Scene: SceneProfile},
		{Match: matchAny("Мои заказы"), Scene: SceneOrders},
		{Match: matchAny("/admin", "Админка"), Scene: SceneAdmin},
	}
}

// DefaultHandler показывает главное меню событиям вне сцен.
func DefaultHandler(d Deps) func(ctx context.Context, ev chat.Event, sess *session.Session) (engine.Outcome, error) {
	return func(ctx context.Context, ev chat.Event, sess *session.Session) (engine.Outcome, error) {
		return engine.Enter(SceneMenu, nil), nil
	}
}

// FallbackScene — сцена восстановления после сбоя обработчика.
func FallbackScene(identity string) string {
	return SceneMenu
}

// menuScene рисует главное меню в зависимости от регистрации и роли.
func menuScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneMenu,
		Steps: []engine.Step{
			{Name: "show", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				registered := true
				if _, err := d.Profiles.Get(ctx, c.Session.Identity); err != nil {
					if !errors.Is(err, profile.ErrProfileNotFound) {
						log.Warn().Err(err).Str("identity", c.Session.Identity).Msg("scenes: failed to load profile for menu")
					}
					registered = false
				}

				reply := chat.TextReply("Главное меню").
					WithRow(chat.Button{Text: "Поиск", Payload: "menu:search"})
				if registered {
					reply = reply.
						WithRow(chat.Button{Text: "Мои заказы", Payload: "menu:orders"}).
						WithRow(chat.Button{Text: "Профиль", Payload: "menu:profile"})
				} else {
					reply = reply.WithRow(chat.Button{Text: "Регистрация", Payload: "menu:register"})
				}
				if d.Roles.IsAdmin(c.Session.Identity) {
					reply = reply.WithRow(chat.Button{Text: "Админка", Payload: "menu:admin"})
				}
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "pick", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				switch c.Event.Callback {
				case "menu:search":
					return engine.Enter(SceneSearch, nil), nil
				case "menu:orders":
					return engine.Enter(SceneOrders, nil), nil
				case "menu:profile":
					return engine.Enter(SceneProfile, nil), nil
				case "menu:register":
					return engine.Enter(SceneRegistration, nil), nil
				case "menu:admin":
					return engine.Enter(SceneAdmin, nil), nil
				}
				// Любой текст вне кнопок трактуем как поисковый запрос.
				if c.Event.Text != "" && !c.Event.IsCommand() {
					return engine.Enter(SceneSearch, &searchQueryArgs{Query: c.Event.Text}), nil
				}
				return engine.Reenter(), nil
			}},
		},
	}
}
