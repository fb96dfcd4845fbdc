// Package pool предоставляет клиент источника пула анкет-кандидатов.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mkravcova/boosterpack-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом анкет.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type profileCard struct {
	ID       int64  `json:"id"`
	Rarity   string `json:"rarity"`
	Name     string `json:"name"`
	Age      int    `json:"age"`
	Bio      string `json:"bio,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// NewClient создаёт HTTP-клиент сервиса анкет по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// FetchEligible запрашивает пул кандидатов для категории. Сервис анкет сам
// исключает уже заматченные профили; excludeIDs дополнительно отсекает
// карточки, по которым пользователь уже принимал решение.
func (c *Client) FetchEligible(ctx context.Context, category model.PackCategory, excludeIDs []int64) ([]model.Card, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("pool client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	q := url.Values{}
	q.Set("category", string(category))
	if len(excludeIDs) > 0 {
		parts := make([]string, 0, len(excludeIDs))
		for _, id := range excludeIDs {
			parts = append(parts, strconv.FormatInt(id, 10))
		}
		q.Set("exclude", strings.Join(parts, ","))
	}

	reqURL := fmt.Sprintf("%s/api/profiles/eligible?%s", base, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var profiles []profileCard
	if err := json.NewDecoder(resp.Body).Decode(&profiles); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	cards := make([]model.Card, 0, len(profiles))
	for _, p := range profiles {
		cards = append(cards, model.Card{
			ID:       p.ID,
			Rarity:   model.RarityTier(p.Rarity),
			Category: category,
			Name:     p.Name,
			Age:      p.Age,
			Bio:      p.Bio,
			PhotoURL: p.PhotoURL,
		})
	}

	return cards, nil
}
