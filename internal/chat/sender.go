package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPSender отправляет ответы внешнему транспорту одним POST-запросом.
type HTTPSender struct {
	client *http.Client
	url    string
}

func NewHTTPSender(url string) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
	}
}

type outboundMessage struct {
	Identity string `json:"identity"`
	Reply    Reply  `json:"reply"`
}

func (s *HTTPSender) Send(ctx context.Context, identity string, reply Reply) error {
	body, err := json.Marshal(outboundMessage{Identity: identity, Reply: reply})
	if err != nil {
		return fmt.Errorf("sender: failed to marshal reply: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sender: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sender: failed to deliver reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sender: transport returned status %d", resp.StatusCode)
	}
	return nil
}

// LogSender пишет ответы в лог. Используется, когда транспорт не настроен
// (локальная разработка, тесты окружения).
type LogSender struct{}

func (LogSender) Send(_ context.Context, identity string, reply Reply) error {
	log.Info().Str("identity", identity).Str("text", reply.Text).Msg("outbound reply")
	return nil
}
