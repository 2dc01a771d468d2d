package scenes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/profile"
)

func profileScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneProfile,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				prof, err := d.Profiles.Get(ctx, c.Session.Identity)
				if err != nil {
					if errors.Is(err, profile.ErrProfileNotFound) {
						reply := chat.TextReply("Профиль не найден. Сначала зарегистрируйтесь.").
							WithRow(chat.Button{Text: "Регистрация", Payload: "register"})
						if err := c.Reply(ctx, reply); err != nil {
							return engine.Stay(), err
						}
						return engine.Goto("no_profile"), nil
					}
					return engine.Stay(), err
				}

				if err := c.Reply(ctx, renderProfile(prof)); err != nil {
					return engine.Stay(), err
				}
				return engine.Goto("menu"), nil
			}},
			{Name: "no_profile", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if c.Event.Callback == "register" {
					return engine.Enter(SceneRegistration, nil), nil
				}
				return engine.Stay(), nil
			}},
			{Name: "menu", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				switch c.Event.Callback {
				case "edit:name":
					if err := c.Reply(ctx, chat.TextReply("Введите новое имя.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("edit_name"), nil
				case "edit:phone":
					if err := c.Reply(ctx, chat.TextReply("Введите новый телефон.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("edit_phone"), nil
				case "edit:address":
					if err := c.Reply(ctx, chat.TextReply("Введите адрес пункта выдачи для доставки.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("edit_address"), nil
				case "edit:org":
					text := "Реквизиты организации, четыре строки:\nИНН\nНазвание\nОГРН\nЮридический адрес"
					if err := c.Reply(ctx, chat.TextReply(text)); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("edit_org"), nil
				case "delete":
					reply := chat.TextReply("Удалить профиль? Заказы и историю поиска можно удалить вместе с ним.").
						WithRow(chat.Button{Text: "Только профиль", Payload: "del:profile"}).
						WithRow(chat.Button{Text: "Профиль и все данные", Payload: "del:all"}).
						WithRow(chat.Button{Text: "Отменить", Payload: "del:cancel"})
					if err := c.Reply(ctx, reply); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("delete_confirm"), nil
				}
				return engine.Stay(), nil
			}},
			{Name: "edit_name", Handle: editField(d, "Имя обновлено.", func(text string, upd *profile.Update) bool {
				if text == "" {
					return false
				}
				upd.Name = &text
				return true
			})},
			{Name: "edit_phone", Handle: editField(d, "Телефон обновлён.", func(text string, upd *profile.Update) bool {
				if !validPhone(text) {
					return false
				}
				upd.Phone = &text
				return true
			})},
			{Name: "edit_address", Handle: editField(d, "Адрес обновлён.", func(text string, upd *profile.Update) bool {
				if text == "" {
					return false
				}
				upd.Address = &text
				return true
			})},
			{Name: "edit_org", Handle: editField(d, "Реквизиты обновлены.", func(text string, upd *profile.Update) bool {
				lines := strings.Split(text, "\n")
				if len(lines) != 4 {
					return false
				}
				inn := strings.TrimSpace(lines[0])
				title := strings.TrimSpace(lines[1])
				ogrn := strings.TrimSpace(lines[2])
				addr := strings.TrimSpace(lines[3])
				if inn == "" || title == "" {
					return false
				}
				upd.OrgINN, upd.OrgTitle, upd.OrgOGRN, upd.OrgAddress = &inn, &title, &ogrn, &addr
				return true
			})},
			{Name: "delete_confirm", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				switch c.Event.Callback {
				case "del:cancel":
					return engine.Reenter(), nil
				case "del:profile", "del:all":
					withData := c.Event.Callback == "del:all"
					if err := d.Profiles.Delete(ctx, c.Session.Identity, withData); err != nil {
						if err := c.Reply(ctx, chat.TextReply("Не получилось удалить профиль. Попробуйте ещё раз.")); err != nil {
							return engine.Stay(), err
						}
						return engine.Stay(), nil
					}
					if err := c.Reply(ctx, chat.TextReply("Профиль удалён.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Enter(SceneMenu, nil), nil
				}
				return engine.Stay(), nil
			}},
		},
	}
}

// editField — общий обработчик шага редактирования одного поля анкеты:
// валидация локальная, неудача переспрашивает тот же шаг.
func editField(d Deps, doneText string, fill func(text string, upd *profile.Update) bool) engine.Handler {
	return func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
		text := strings.TrimSpace(c.Event.Text)
		var upd profile.Update
		if c.Event.IsCommand() || !fill(text, &upd) {
			if err := c.Reply(ctx, chat.TextReply("Не получилось разобрать ввод. Попробуйте ещё раз.")); err != nil {
				return engine.Stay(), err
			}
			return engine.Stay(), nil
		}
		if err := d.Profiles.Update(ctx, c.Session.Identity, upd); err != nil {
			if err := c.Reply(ctx, chat.TextReply("Не получилось сохранить. Попробуйте ещё раз.")); err != nil {
				return engine.Stay(), err
			}
			return engine.Stay(), nil
		}
		if err := c.Reply(ctx, chat.TextReply(doneText)); err != nil {
			return engine.Stay(), err
		}
		return engine.Reenter(), nil
	}
}

func renderProfile(p *profile.Profile) chat.Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "Профиль\nИмя: %s\nТелефон: %s\n", p.Name, p.Phone)
	if p.Address != "" {
		fmt.Fprintf(&b, "Адрес доставки: %s\n", p.Address)
	}
	if p.HasOrg() {
		fmt.Fprintf(&b, "\nОрганизация\nИНН: %s\nНазвание: %s\nОГРН: %s\nАдрес: %s\n",
			p.OrgINN, p.OrgTitle, p.OrgOGRN, p.OrgAddress)
	}
	return chat.TextReply(strings.TrimRight(b.String(), "\n")).
		WithRow(
			chat.Button{Text: "Имя", Payload: "edit:name"},
			chat.Button{Text: "Телефон", Payload: "edit:phone"},
		).
		WithRow(
			chat.Button{Text: "Адрес доставки", Payload: "edit:address"},
			chat.Button{Text: "Реквизиты организации", Payload: "edit:org"},
		).
		WithRow(chat.Button{Text: "Удалить профиль", Payload: "delete"})
}
