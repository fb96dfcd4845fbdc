// Package match предоставляет клиент для внешнего сервиса матчей.
package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом матчей.
// Отправка лайка — мутирующий вызов, поэтому клиент повторяет его
// с ограниченным бэкоффом сам; дедупликация решений выполняется до вызова.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

type likeRequest struct {
	UserID int64 `json:"user_id"`
	CardID int64 `json:"card_id"`
}

type likeResponse struct {
	Matched bool `json:"matched"`
}

// NewClient создаёт HTTP-клиент сервиса матчей по указанному адресу.
func NewClient(baseURL string) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = 5 * time.Second
	hc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

// Like отправляет лайк пользователя по карточке и возвращает признак
// взаимности. Сервис матчей — единственный источник истины о матче.
func (c *Client) Like(ctx context.Context, userID, cardID int64) (bool, error) {
	if c == nil || c.baseURL == "" {
		return false, fmt.Errorf("match client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(likeRequest{UserID: userID, CardID: cardID})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, base+"/api/likes", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result likeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}

	return result.Matched, nil
}
