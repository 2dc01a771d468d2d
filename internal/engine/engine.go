// Package engine — диспетчер многошаговых диалогов. Сцена — именованный
// упорядоченный список шагов; первый шаг — входной. Движок хранит
// (сцена, шаг, состояние) в session.Store, переживает рестарты и гарантирует,
// что указатель шага никогда не указывает мимо сцены, в том числе после
// паники обработчика.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/partsbot/internal/chat"
	"github.com/vasiliy-maslov/partsbot/internal/session"
)

// Handler обрабатывает одно событие на конкретном шаге сцены.
type Handler func(ctx context.Context, sc *Context) (Outcome, error)

type Step struct {
	Name   string
	Handle Handler
}

type Scene struct {
	ID    string
	Steps []Step
}

func (s *Scene) stepIndex(name string) (int, bool) {
	for i, step := range s.Steps {
		if step.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Interceptor — глобальная команда, выбивающая сессию из любой сцены в
// целевую. Обязательный аварийный выход: сессия не может застрять навсегда.
type Interceptor struct {
	Match func(ev chat.Event) bool
	Scene string
}

// Context передаётся обработчику шага.
type Context struct {
	Event   chat.Event
	Session *session.Session
	// Args — аргументы enter; заполнены только для входного шага.
	Args any

	eng *Engine
}

// Reply отправляет ответ пользователю текущей сессии.
func (c *Context) Reply(ctx context.Context, reply chat.Reply) error {
	return c.eng.sender.Send(ctx, c.Session.Identity, reply)
}

// State разбирает состояние сцены; SetState сохраняет его обратно.
func (c *Context) State(v any) error    { return c.Session.DecodeState(v) }
func (c *Context) SetState(v any) error { return c.Session.SetState(v) }

// Engine координирует сцены поверх session.Store. События одной сессии
// обрабатываются строго по одному: на identity берётся локальный мьютекс.
type Engine struct {
	store        session.Store
	sender       chat.Sender
	scenes       map[string]*Scene
	interceptors []Interceptor

	// defaultHandler обрабатывает события вне сцен (главное меню).
	defaultHandler func(ctx context.Context, ev chat.Event, sess *session.Session) (Outcome, error)
	// fallbackScene — сцена восстановления после сбоя обработчика.
	fallbackScene func(identity string) string
	retryText     string

	locks sync.Map // identity -> *sync.Mutex
}

type Option func(*Engine)

func WithInterceptors(ics ...Interceptor) Option {
	return func(e *Engine) { e.interceptors = append(e.interceptors, ics...) }
}

func WithDefaultHandler(h func(ctx context.Context, ev chat.Event, sess *session.Session) (Outcome, error)) Option {
	return func(e *Engine) { e.defaultHandler = h }
}

func WithFallbackScene(f func(identity string) string) Option {
	return func(e *Engine) { e.fallbackScene = f }
}

func WithRetryText(text string) Option {
	return func(e *Engine) { e.retryText = text }
}

func New(store session.Store, sender chat.Sender, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		sender:    sender,
		scenes:    make(map[string]*Scene),
		retryText: "Что-то пошло не так. Попробуйте ещё раз.",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register добавляет сцену. Сцена без шагов — ошибка программиста.
func (e *Engine) Register(scene *Scene) {
	if len(scene.Steps) == 0 {
		panic(fmt.Sprintf("engine: scene %q has no steps", scene.ID))
	}
	e.scenes[scene.ID] = scene
}

func (e *Engine) lock(identity string) func() {
	v, _ := e.locks.LoadOrStore(identity, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// HandleEvent — единственная точка входа: загружает сессию, прогоняет
// глобальные перехватчики, диспетчеризует событие в текущий шаг и
// применяет исход. Повторная доставка события — забота обработчиков
// (завершённость фиксируется в состоянии сцены).
func (e *Engine) HandleEvent(ctx context.Context, ev chat.Event) error {
	unlock := e.lock(ev.Identity)
	defer unlock()

	sess, err := e.store.Get(ctx, ev.Identity)
	if err != nil {
		return fmt.Errorf("engine: failed to load session: %w", err)
	}
	if sess == nil {
		sess = &session.Session{Identity: ev.Identity}
	}

	for _, ic := range e.interceptors {
		if ic.Match(ev) {
			sess.Clear()
			if err := e.enter(ctx, ev, sess, ic.Scene, nil, 0); err != nil {
				e.recover(ctx, ev, sess, err)
			}
			return e.persist(ctx, sess)
		}
	}

	if !sess.InScene() {
		if e.defaultHandler == nil {
			return e.persist(ctx, sess)
		}
		outcome, err := e.defaultHandler(ctx, ev, sess)
		if err != nil {
			e.recover(ctx, ev, sess, err)
			return e.persist(ctx, sess)
		}
		if err := e.apply(ctx, ev, sess, outcome, 0); err != nil {
			e.recover(ctx, ev, sess, err)
		}
		return e.persist(ctx, sess)
	}

	scene, ok := e.scenes[sess.Scene]
	if !ok || sess.Step < 0 || sess.Step >= len(scene.Steps) {
		e.recover(ctx, ev, sess, fmt.Errorf("engine: session points at unknown scene %q step %d", sess.Scene, sess.Step))
		return e.persist(ctx, sess)
	}

	outcome, err := e.invoke(ctx, scene.Steps[sess.Step].Handle, &Context{Event: ev, Session: sess, eng: e})
	if err != nil {
		e.recover(ctx, ev, sess, err)
		return e.persist(ctx, sess)
	}
	if err := e.apply(ctx, ev, sess, outcome, 0); err != nil {
		e.recover(ctx, ev, sess, err)
	}
	return e.persist(ctx, sess)
}

// invoke вызывает обработчик, превращая панику в ошибку.
func (e *Engine) invoke(ctx context.Context, h Handler, sc *Context) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("engine: handler panicked: %v", p)
		}
	}()
	return h(ctx, sc)
}

const maxChainDepth = 8

var errChainTooDeep = errors.New("engine: scene transition chain too deep")

// apply переводит сессию согласно исходу обработчика.
func (e *Engine) apply(ctx context.Context, ev chat.Event, sess *session.Session, outcome Outcome, depth int) error {
	if depth > maxChainDepth {
		return errChainTooDeep
	}

	switch outcome.kind {
	case kindStay:
		return nil
	case kindAdvance:
		scene := e.scenes[sess.Scene]
		if scene == nil || sess.Step+1 >= len(scene.Steps) {
			return fmt.Errorf("engine: cannot advance past last step of %q", sess.Scene)
		}
		sess.Step++
		return nil
	case kindGoto:
		scene := e.scenes[sess.Scene]
		if scene == nil {
			return fmt.Errorf("engine: goto outside of a scene")
		}
		idx, ok := scene.stepIndex(outcome.step)
		if !ok {
			return fmt.Errorf("engine: scene %q has no step %q", sess.Scene, outcome.step)
		}
		sess.Step = idx
		return nil
	case kindReenter:
		return e.enter(ctx, ev, sess, sess.Scene, nil, depth+1)
	case kindEnter:
		return e.enter(ctx, ev, sess, outcome.scene, outcome.args, depth+1)
	case kindLeave:
		sess.Clear()
		return nil
	default:
		return fmt.Errorf("engine: unknown outcome kind %d", outcome.kind)
	}
}

// enter замещает активную сцену и запускает её входной шаг с args.
// Состояние прежней сцены при этом отбрасывается.
func (e *Engine) enter(ctx context.Context, ev chat.Event, sess *session.Session, sceneID string, args any, depth int) error {
	if depth > maxChainDepth {
		return errChainTooDeep
	}
	scene, ok := e.scenes[sceneID]
	if !ok {
		return fmt.Errorf("engine: unknown scene %q", sceneID)
	}

	sess.Clear()
	sess.Scene = sceneID

	outcome, err := e.invoke(ctx, scene.Steps[0].Handle, &Context{Event: ev, Session: sess, Args: args, eng: e})
	if err != nil {
		return err
	}
	return e.apply(ctx, ev, sess, outcome, depth+1)
}

// recover — централизованное восстановление после сбоя обработчика: лог,
// leave, приглашение повторить и возврат в сцену по умолчанию. Никаких
// автоматических повторов — повтор всегда новое событие пользователя.
func (e *Engine) recover(ctx context.Context, ev chat.Event, sess *session.Session, cause error) {
	log.Error().Err(cause).
		Str("identity", sess.Identity).
		Str("scene", sess.Scene).
		Int("step", sess.Step).
		Msg("engine: handler failed, resetting session")

	sess.Clear()

	if err := e.sender.Send(ctx, sess.Identity, chat.TextReply(e.retryText)); err != nil {
		log.Error().Err(err).Str("identity", sess.Identity).Msg("engine: failed to send retry prompt")
	}

	if e.fallbackScene == nil {
		return
	}
	sceneID := e.fallbackScene(sess.Identity)
	if sceneID == "" {
		return
	}
	if err := e.enter(ctx, ev, sess, sceneID, nil, 0); err != nil {
		log.Error().Err(err).Str("scene", sceneID).Msg("engine: failed to enter fallback scene")
		sess.Clear()
	}
}

func (e *Engine) persist(ctx context.Context, sess *session.Session) error {
	if err := e.store.Put(ctx, sess); err != nil {
		log.Error().Err(err).Str("identity", sess.Identity).Msg("engine: failed to persist session")
		return fmt.Errorf("engine: failed to persist session: %w", err)
	}
	return nil
}
