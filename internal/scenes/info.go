package scenes

import (
	"context"
	"fmt"
	"strings"

	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
)

// infoArgs — карточка товара из выдачи плюс снапшот для возврата.
type infoArgs struct {
	Article catalog.Article
	Return  *searchSnapshot
}

// infoState хранит снапшот выдачи в сессии: возврат из карточки
// восстанавливает выдачу без запроса к каталогу.
type infoState struct {
	Return *searchSnapshot `json:"return,omitempty"`
}

func infoScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneInfo,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				args, ok := c.Args.(*infoArgs)
				if !ok {
					return engine.Enter(SceneSearch, nil), nil
				}
				if err := c.SetState(&infoState{Return: args.Return}); err != nil {
					return engine.Stay(), err
				}

				a := args.Article
				var b strings.Builder
				fmt.Fprintf(&b, "%s %s\n%s\n\n", a.Brand, a.Number, a.Description)
				fmt.Fprintf(&b, "Цена: %s ₽\nНаличие: %s\nСрок поставки: %s\n", a.Price.StringFixed(2), a.Availability.Display, a.DeliveryLabel)
				if a.SupplierCode != "" {
					fmt.Fprintf(&b, "Код поставщика: %s\n", a.SupplierCode)
				}
				if dist, ok := d.Distributors.Map(ctx)[a.DistributorID]; ok {
					fmt.Fprintf(&b, "Поставщик: %s (%s)\n", dist.Name, dist.Contractor)
				}
				if a.LastUpdateTime != "" {
					fmt.Fprintf(&b, "Данные от: %s\n", a.LastUpdateTime)
				}

				reply := chat.TextReply(strings.TrimRight(b.String(), "\n")).
					WithRow(chat.Button{Text: "Назад к результатам", Payload: "back"})
				if err := c.Reply(ctx, reply); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "await", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				if c.Event.Callback != "back" {
					return engine.Stay(), nil
				}
				var st infoState
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				if st.Return == nil {
					return engine.Enter(SceneSearch, nil), nil
				}
				return engine.Enter(SceneSearch, st.Return), nil
			}},
		},
	}
}
