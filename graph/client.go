// Package graph — минимальный клиент Meta Graph API для исходящих отправок.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client выполняет вызовы Graph API с ограниченным таймаутом.
type Client struct {
	apiURL      string
	accessToken string
	client      *http.Client
}

// sendRequest описывает тело POST-запроса /me/messages.
type sendRequest struct {
	Recipient     recipient `json:"recipient"`
	Message       textBody  `json:"message"`
	MessagingType string    `json:"messaging_type"`
}

type recipient struct {
	ID string `json:"id"`
}

type textBody struct {
	Text string `json:"text"`
}

// sendResponse описывает ответ платформы на отправку.
type sendResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// NewClient создаёт клиента Graph API.
func NewClient(apiURL, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:      apiURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

// SendText отправляет текстовое сообщение собеседнику. Возвращает внешний
// идентификатор сообщения, присвоенный платформой. Таймаут — неудача
// отправки: каноническое сообщение в этом случае не создаётся.
func (c *Client) SendText(ctx context.Context, recipientID, text string) (string, error) {
	payload, err := json.Marshal(sendRequest{
		Recipient:     recipient{ID: recipientID},
		Message:       textBody{Text: text},
		MessagingType: "RESPONSE",
	})
	if err != nil {
		return "", fmt.Errorf("marshal request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.apiURL, c.accessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Graph API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var sent sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return sent.MessageID, nil
}
