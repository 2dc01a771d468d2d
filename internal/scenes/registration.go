package scenes

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
)

// registrationArgs — вход в регистрацию. ResumeOrder заполнен, когда
// регистрация прервала оформление заказа: после успеха заказ продолжается
// с того же места.
type registrationArgs struct {
	ResumeOrder *orderState
}

type registrationState struct {
	Name        string      `json:"name,omitempty"`
	ResumeOrder *orderState `json:"resume_order,omitempty"`
}

func registrationScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneRegistration,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				st := registrationState{}
				if args, ok := c.Args.(*registrationArgs); ok {
					st.ResumeOrder = args.ResumeOrder
				}

				// Уже зарегистрирован — регистрировать нечего.
				if _, err := d.Profiles.Get(ctx, c.Session.Identity); err == nil {
					if err := c.Reply(ctx, chat.TextReply("Вы уже зарегистрированы.")); err != nil {
						return engine.Stay(), err
					}
					if st.ResumeOrder != nil {
						return engine.Enter(SceneOrder, &orderResume{State: *st.ResumeOrder}), nil
					}
					return engine.Leave(), nil
				} else if !errors.Is(err, profile.ErrProfileNotFound) {
					return engine.Stay(), err
				}

				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				if err := c.Reply(ctx, chat.TextReply("Регистрация. Как вас зовут?")); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "name", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				name := strings.TrimSpace(c.Event.Text)
				if name == "" || c.Event.IsCommand() {
					if err := c.Reply(ctx, chat.TextReply("Введите имя текстом.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}

				var st registrationState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				st.Name = name
				if err := c.SetState(&st); err != nil {
					return engine.Stay(), err
				}
				if err := c.Reply(ctx, chat.TextReply("Теперь телефон: отправьте контакт или введите номер.")); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "phone", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st registrationState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}

				var phone string
				switch {
				case c.Event.Contact != nil:
					phone = c.Event.Contact.Phone
				case validPhone(strings.TrimSpace(c.Event.Text)):
					phone = strings.TrimSpace(c.Event.Text)
				default:
					if err := c.Reply(ctx, chat.TextReply("Не похоже на телефон. Отправьте контакт или введите номер.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				}

				p := &profile.Profile{
					TelegramID: c.Session.Identity,
					Name:       st.Name,
					Phone:      phone,
				}
				if err := d.Profiles.Create(ctx, p); err != nil {
					if errors.Is(err, profile.ErrProfileExists) {
						if err := c.Reply(ctx, chat.TextReply("Вы уже зарегистрированы.")); err != nil {
							return engine.Stay(), err
						}
					} else {
						log.Error().Err(err).Str("identity", c.Session.Identity).Msg("scenes: failed to create profile")
						if err := c.Reply(ctx, chat.TextReply("Не получилось сохранить анкету. Попробуйте ещё раз.")); err != nil {
							return engine.Stay(), err
						}
						return engine.Stay(), nil
					}
				} else {
					if err := d.Notifier.NewRegistration(ctx, p); err != nil {
						log.Error().Err(err).Str("identity", c.Session.Identity).Msg("scenes: registration notification failed")
					}
					if err := c.Reply(ctx, chat.TextReply("Готово, "+st.Name+"! Вы зарегистрированы.")); err != nil {
						return engine.Stay(), err
					}
				}

				if st.ResumeOrder != nil {
					return engine.Enter(SceneOrder, &orderResume{State: *st.ResumeOrder}), nil
				}
				return engine.Enter(SceneMenu, nil), nil
			}},
		},
	}
}
