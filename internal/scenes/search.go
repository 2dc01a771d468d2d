package scenes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/catalog"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/engine"
	"github.com/vasiliy-maslov/partsbot/internal/history"
)

// searchSnapshot — полное состояние сцены поиска. Снапшот сериализуется в
// сессию и проходит через границу подсцен (заказ, карточка товара), чтобы
// возврат не требовал нового запроса к каталогу.
type searchSnapshot struct {
	Query       string            `json:"query"`
	Brands      []catalog.Brand   `json:"brands,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Number      string            `json:"number,omitempty"`
	Articles    []catalog.Article `json:"articles,omitempty"`
	ShowAnalogs bool              `json:"show_analogs,omitempty"`
}

// searchQueryArgs — вход в сцену с уже готовым запросом (текст из меню).
type searchQueryArgs struct {
	Query string
}

func searchScene(d Deps) *engine.Scene {
	return &engine.Scene{
		ID: SceneSearch,
		Steps: []engine.Step{
			{Name: "intro", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				// Возврат из подсцены: восстанавливаем выдачу без запроса к API.
				if snap, ok := c.Args.(*searchSnapshot); ok && snap != nil {
					if err := c.SetState(snap); err != nil {
						return engine.Stay(), err
					}
					if err := renderArticles(ctx, c, d, snap); err != nil {
						return engine.Stay(), err
					}
					return engine.Goto("results"), nil
				}
				if args, ok := c.Args.(*searchQueryArgs); ok && args.Query != "" {
					return handleQuery(ctx, c, d, args.Query)
				}
				if err := promptQuery(ctx, c, d); err != nil {
					return engine.Stay(), err
				}
				return engine.Advance(), nil
			}},
			{Name: "await_query", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				switch {
				case c.Event.Callback == "history:clear":
					if err := d.History.Clear(ctx, c.Session.Identity); err != nil {
						log.Warn().Err(err).Msg("scenes: failed to clear search history")
					}
					if err := c.Reply(ctx, chat.TextReply("История очищена. Введите артикул.")); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				case strings.HasPrefix(c.Event.Callback, "hist:"):
					return handleQuery(ctx, c, d, strings.TrimPrefix(c.Event.Callback, "hist:"))
				case c.Event.Text != "" && !c.Event.IsCommand():
					return handleQuery(ctx, c, d, c.Event.Text)
				}
				return engine.Stay(), nil
			}},
			{Name: "brands", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st searchSnapshot
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				if strings.HasPrefix(c.Event.Callback, "brand:") {
					i, err := strconv.Atoi(strings.TrimPrefix(c.Event.Callback, "brand:"))
					if err != nil || i < 0 || i >= len(st.Brands) {
						return engine.Stay(), nil
					}
					return handleBrand(ctx, c, d, &st, st.Brands[i])
				}
				// Новый текст на шаге брендов — это новый запрос.
				if c.Event.Text != "" && !c.Event.IsCommand() {
					return handleQuery(ctx, c, d, c.Event.Text)
				}
				return engine.Stay(), nil
			}},
			{Name: "results", Handle: func(ctx context.Context, c *engine.Context) (engine.Outcome, error) {
				var st searchSnapshot
				if err := c.State(&st); err != nil {
					return engine.Stay(), err
				}
				articles := visibleArticles(&st)
				switch {
				case c.Event.Callback == "analogs":
					st.ShowAnalogs = true
					if err := c.SetState(&st); err != nil {
						return engine.Stay(), err
					}
					if err := renderArticles(ctx, c, d, &st); err != nil {
						return engine.Stay(), err
					}
					return engine.Stay(), nil
				case c.Event.Callback == "restart":
					return engine.Reenter(), nil
				case strings.HasPrefix(c.Event.Callback, "order:"):
					i, err := strconv.Atoi(strings.TrimPrefix(c.Event.Callback, "order:"))
					if err != nil || i < 0 || i >= len(articles) {
						return engine.Stay(), nil
					}
					return engine.Enter(SceneOrder, &orderArgs{Article: articles[i], Return: &st}), nil
				case strings.HasPrefix(c.Event.Callback, "info:"):
					i, err := strconv.Atoi(strings.TrimPrefix(c.Event.Callback, "info:"))
					if err != nil || i < 0 || i >= len(articles) {
						return engine.Stay(), nil
					}
					return engine.Enter(SceneInfo, &infoArgs{Article: articles[i], Return: &st}), nil
				case c.Event.Text != "" && !c.Event.IsCommand():
					return handleQuery(ctx, c, d, c.Event.Text)
				}
				return engine.Stay(), nil
			}},
		},
	}
}

// promptQuery приглашает к вводу артикула и показывает последние запросы.
func promptQuery(ctx context.Context, c *engine.Context, d Deps) error {
	reply := chat.TextReply("Введите артикул для поиска.")
	entries, err := d.History.Last(ctx, c.Session.Identity, 5)
	if err != nil {
		log.Warn().Err(err).Msg("scenes: failed to load search history")
	}
	for _, e := range entries {
		reply = reply.WithRow(chat.Button{Text: e.Query, Payload: "hist:" + e.Query})
	}
	if len(entries) > 0 {
		reply = reply.WithRow(chat.Button{Text: "Очистить историю", Payload: "history:clear"})
	}
	return c.Reply(ctx, reply)
}

// handleQuery ищет бренды по артикулу и рисует кнопки выбора бренда.
func handleQuery(ctx context.Context, c *engine.Context, d Deps, query string) (engine.Outcome, error) {
	query = strings.TrimSpace(query)
	brands, err := d.Catalog.SearchBrands(ctx, query)
	if err != nil {
		// Ошибки каталога вырождаются в пустую выдачу с приглашением повторить.
		log.Error().Err(err).Str("query", query).Msg("scenes: brand search failed")
		brands = nil
	}

	// История пишется не на критическом пути.
	go func(count int) {
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.History.Add(hctx, history.Entry{TelegramID: c.Session.Identity, Query: query, ResultsCount: count}); err != nil {
			log.Warn().Err(err).Str("query", query).Msg("scenes: failed to record search history")
		}
	}(len(brands))

	if len(brands) == 0 {
		if err := c.Reply(ctx, chat.TextReply("По запросу «"+query+"» ничего не найдено. Попробуйте другой артикул.")); err != nil {
			return engine.Stay(), err
		}
		return engine.Goto("await_query"), nil
	}

	st := searchSnapshot{Query: query, Brands: brands}
	if err := c.SetState(&st); err != nil {
		return engine.Stay(), err
	}

	reply := chat.TextReply("Выберите бренд:")
	for i, b := range brands {
		label := b.Brand
		if b.Description != "" {
			label = fmt.Sprintf("%s — %s", b.Brand, b.Description)
		}
		reply = reply.WithRow(chat.Button{Text: label, Payload: "brand:" + strconv.Itoa(i)})
	}
	if err := c.Reply(ctx, reply); err != nil {
		return engine.Stay(), err
	}
	return engine.Goto("brands"), nil
}

// handleBrand загружает предложения по выбранному бренду.
func handleBrand(ctx context.Context, c *engine.Context, d Deps, st *searchSnapshot, b catalog.Brand) (engine.Outcome, error) {
	number := b.NumberFix
	if number == "" {
		number = b.Number
	}
	articles, err := d.Catalog.SearchArticles(ctx, number, b.Brand)
	if err != nil {
		log.Error().Err(err).Str("brand", b.Brand).Str("number", number).Msg("scenes: article search failed")
		articles = nil
	}
	if len(articles) == 0 {
		if err := c.Reply(ctx, chat.TextReply("По бренду "+b.Brand+" ничего не найдено. Введите другой артикул.")); err != nil {
			return engine.Stay(), err
		}
		return engine.Goto("await_query"), nil
	}

	st.Brand = b.Brand
	st.Number = number
	st.Articles = articles
	st.ShowAnalogs = false
	if err := c.SetState(st); err != nil {
		return engine.Stay(), err
	}
	if err := renderArticles(ctx, c, d, st); err != nil {
		return engine.Stay(), err
	}
	return engine.Goto("results"), nil
}

// visibleArticles — прямые совпадения, плюс аналоги после явного запроса.
func visibleArticles(st *searchSnapshot) []catalog.Article {
	out := make([]catalog.Article, 0, len(st.Articles))
	for _, a := range st.Articles {
		if !a.IsAnalog {
			out = append(out, a)
		}
	}
	if st.ShowAnalogs {
		for _, a := range st.Articles {
			if a.IsAnalog {
				out = append(out, a)
			}
		}
	}
	return out
}

// renderArticles рисует карточки предложений: прямые совпадения первыми,
// аналоги спрятаны за отдельной кнопкой, чтобы не заливать чат.
func renderArticles(ctx context.Context, c *engine.Context, d Deps, st *searchSnapshot) error {
	articles := visibleArticles(st)
	analogsHidden := 0
	if !st.ShowAnalogs {
		analogsHidden = len(st.Articles) - len(articles)
	}

	header := fmt.Sprintf("%s %s: найдено %d предложений", st.Brand, st.Number, len(articles))
	if err := c.Reply(ctx, chat.TextReply(header)); err != nil {
		return err
	}

	for i, a := range articles {
		text := fmt.Sprintf("%s %s\n%s\nЦена: %s ₽\nНаличие: %s\nСрок: %s",
			a.Brand, a.Number, a.Description, a.Price.StringFixed(2), a.Availability.Display, a.DeliveryLabel)
		if a.IsAnalog {
			text = "Аналог\n" + text
		}
		reply := chat.TextReply(text).WithRow(
			chat.Button{Text: "Заказать", Payload: "order:" + strconv.Itoa(i)},
			chat.Button{Text: "Инфо", Payload: "info:" + strconv.Itoa(i)},
		)
		if err := c.Reply(ctx, reply); err != nil {
			return err
		}
	}

	footer := chat.TextReply("Что дальше?").WithRow(chat.Button{Text: "Новый поиск", Payload: "restart"})
	if analogsHidden > 0 {
		footer = chat.TextReply("Что дальше?").
			WithRow(chat.Button{Text: fmt.Sprintf("Показать аналоги (%d)", analogsHidden), Payload: "analogs"}).
			WithRow(chat.Button{Text: "Новый поиск", Payload: "restart"})
	}
	return c.Reply(ctx, footer)
}
