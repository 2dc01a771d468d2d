// Package session — долговечное состояние диалога per identity. Сессия
// переживает рестарт процесса и истекает по TTL неактивности.
package session

import (
	"context"
	"encoding/json"
)

// Session — активная сцена, шаг и состояние сцены одного пользователя.
// Инвариант: Step всегда валиден для списка шагов активной сцены; за это
// отвечает движок, стор хранит сессию как есть.
type Session struct {
	Identity string          `json:"identity"`
	Scene    string          `json:"scene,omitempty"`
	Step     int             `json:"step,omitempty"`
	State    json.RawMessage `json:"state,omitempty"`
}

// InScene сообщает, находится ли сессия в активной сцене.
func (s *Session) InScene() bool {
	return s.Scene != ""
}

// SetState сериализует типизированное состояние сцены в сессию.
func (s *Session) SetState(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.State = raw
	return nil
}

// DecodeState разбирает состояние сцены в типизированную структуру.
func (s *Session) DecodeState(v any) error {
	if len(s.State) == 0 {
		return nil
	}
	return json.Unmarshal(s.State, v)
}

// Clear сбрасывает активную сцену; профилей и заказов не касается.
func (s *Session) Clear() {
	s.Scene = ""
	s.Step = 0
	s.State = nil
}

// Store — хранилище сессий. Get возвращает nil, nil для отсутствующей или
// истёкшей сессии; Put обновляет TTL.
type Store interface {
	Get(ctx context.Context, identity string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, identity string) error
}
