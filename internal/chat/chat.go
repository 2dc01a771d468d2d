// Package chat содержит типы, которыми обмениваются движок диалогов и
// транспорт. Сам транспорт (webhook, long polling) живёт за пределами ядра:
// внутрь попадают только дискретные события, наружу — готовые ответы.
package chat

import "context"

// Event — одно входящее событие от пользователя. Транспорт может доставить
// событие повторно (at-least-once), обработчики обязаны это учитывать.
type Event struct {
	// Identity — идентификатор чата/пользователя в транспорте.
	Identity string `json:"identity"`
	// Text заполнен для обычного текстового сообщения или команды.
	Text string `json:"text,omitempty"`
	// Callback — непрозрачная полезная нагрузка нажатой inline-кнопки.
	Callback string `json:"callback,omitempty"`
	// Contact заполнен, когда пользователь поделился контактом.
	Contact *Contact `json:"contact,omitempty"`
}

type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// IsCommand сообщает, является ли событие слэш-командой.
func (e Event) IsCommand() bool {
	return len(e.Text) > 0 && e.Text[0] == '/'
}

type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Reply — исходящее сообщение: текст плюс опциональная inline-клавиатура.
type Reply struct {
	Text    string     `json:"text"`
	Buttons [][]Button `json:"buttons,omitempty"`
}

func TextReply(text string) Reply {
	return Reply{Text: text}
}

// WithRow добавляет ряд кнопок к ответу.
func (r Reply) WithRow(buttons ...Button) Reply {
	r.Buttons = append(r.Buttons, buttons)
	return r
}

// Sender доставляет ответ получателю. Реализация принадлежит транспорту.
type Sender interface {
	Send(ctx context.Context, identity string, reply Reply) error
}
