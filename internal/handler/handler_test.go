package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkravcova/boosterpack-system/internal/draw"
	"github.com/mkravcova/boosterpack-system/internal/middleware"
	"github.com/mkravcova/boosterpack-system/internal/model"
	"github.com/mkravcova/boosterpack-system/internal/repository"
	"github.com/mkravcova/boosterpack-system/internal/reveal"
	"github.com/mkravcova/boosterpack-system/internal/service"
)

type stubService struct {
	availabilityAllowed bool
	availabilityRetry   time.Duration
	availabilityErr     error

	openSession *model.PackSession
	openErr     error

	getSession *model.PackSession
	getErr     error

	beginErr error

	completeCard *model.Card
	completeErr  error

	decideResult model.MatchResult
	decideErr    error
}

func (s *stubService) PackAvailability(ctx context.Context, userID int64, category model.PackCategory) (bool, time.Duration, error) {
	return s.availabilityAllowed, s.availabilityRetry, s.availabilityErr
}

func (s *stubService) OpenPack(ctx context.Context, userID int64, category model.PackCategory) (*model.PackSession, error) {
	return s.openSession, s.openErr
}

func (s *stubService) GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*model.PackSession, error) {
	return s.getSession, s.getErr
}

func (s *stubService) BeginReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) error {
	return s.beginErr
}

func (s *stubService) CompleteReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) (*model.Card, error) {
	return s.completeCard, s.completeErr
}

func (s *stubService) Decide(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64, outcome model.Outcome) (model.MatchResult, error) {
	return s.decideResult, s.decideErr
}

func newTestRouter(t *testing.T, svc Service) (http.Handler, *middleware.AuthMiddleware) {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")
	h := NewHandler(svc, logger, auth)

	return h.SetupRouter(), auth
}

func doRequest(t *testing.T, router http.Handler, auth *middleware.AuthMiddleware, method, target string, body []byte) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if auth != nil {
		req.Header.Set("Authorization", "Bearer "+auth.TokenForUser(1))
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec.Result()
}

func TestPackAvailability_OnCooldown(t *testing.T) {
	svc := &stubService{
		availabilityAllowed: false,
		availabilityRetry:   3600 * time.Second,
	}
	router, auth := newTestRouter(t, svc)

	res := doRequest(t, router, auth, http.MethodGet, "/api/packs/casual/availability", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp availabilityResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Allowed {
		t.Fatalf("allowed = true, want false")
	}
	if resp.RetryAfter != 3600 {
		t.Fatalf("retry_after = %d, want 3600", resp.RetryAfter)
	}
}

func TestOpenPack_Created(t *testing.T) {
	svc := &stubService{
		openSession: &model.PackSession{
			ID:       uuid.New(),
			UserID:   1,
			Category: model.CategoryCasual,
			OpenedAt: time.Now(),
			Cards: []model.SessionCard{
				{Card: model.Card{ID: 10, Rarity: model.RarityRare, Name: "Hidden"}, Position: 0, State: model.StateClosed},
				{Card: model.Card{ID: 11, Rarity: model.RarityCommon, Name: "Hidden"}, Position: 1, State: model.StateClosed},
			},
		},
	}
	router, auth := newTestRouter(t, svc)

	res := doRequest(t, router, auth, http.MethodPost, "/api/packs/casual/open", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(resp.Cards))
	}
	for _, c := range resp.Cards {
		if c.State != string(model.StateClosed) {
			t.Fatalf("card state = %s, want CLOSED", c.State)
		}
		// До раскрытия наружу уходят только id и редкость.
		if c.Name != "" || c.Age != 0 {
			t.Fatalf("closed card must not expose attributes: %+v", c)
		}
	}
}

func TestOpenPack_EntitlementDenied(t *testing.T) {
	svc := &stubService{
		openErr: &service.EntitlementDeniedError{RetryAfter: 120 * time.Second},
	}
	router, auth := newTestRouter(t, svc)

	res := doRequest(t, router, auth, http.MethodPost, "/api/packs/casual/open", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusTooManyRequests)
	}
	if got := res.Header.Get("Retry-After"); got != "120" {
		t.Fatalf("Retry-After = %q, want 120", got)
	}
}

func TestOpenPack_InsufficientPool(t *testing.T) {
	svc := &stubService{
		openErr: draw.ErrInsufficientPool,
	}
	router, auth := newTestRouter(t, svc)

	res := doRequest(t, router, auth, http.MethodPost, "/api/packs/casual/open", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestOpenPack_UnknownCategory(t *testing.T) {
	router, auth := newTestRouter(t, &stubService{})

	res := doRequest(t, router, auth, http.MethodPost, "/api/packs/enemies/open", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestOpenPack_Unauthorized(t *testing.T) {
	router, _ := newTestRouter(t, &stubService{})

	res := doRequest(t, router, nil, http.MethodPost, "/api/packs/casual/open", nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	svc := &stubService{
		getErr: repository.ErrSessionNotFound,
	}
	router, auth := newTestRouter(t, svc)

	res := doRequest(t, router, auth, http.MethodGet, "/api/sessions/"+uuid.NewString(), nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestCompleteReveal_ExposesAttributes(t *testing.T) {
	svc := &stubService{
		completeCard: &model.Card{ID: 10, Rarity: model.RarityEpic, Name: "Alice", Age: 27, PhotoURL: "http://img/10"},
	}
	router, auth := newTestRouter(t, svc)

	target := "/api/sessions/" + uuid.NewString() + "/cards/10/reveal/complete"
	res := doRequest(t, router, auth, http.MethodPost, target, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp cardResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Name != "Alice" || resp.Age != 27 || resp.State != string(model.StateRevealed) {
		t.Fatalf("unexpected card: %+v", resp)
	}
}

func TestBeginReveal_InvalidTransition(t *testing.T) {
	svc := &stubService{
		beginErr: reveal.ErrInvalidTransition,
	}
	router, auth := newTestRouter(t, svc)

	target := "/api/sessions/" + uuid.NewString() + "/cards/10/reveal"
	res := doRequest(t, router, auth, http.MethodPost, target, nil)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}

func TestDecide_Matched(t *testing.T) {
	svc := &stubService{
		decideResult: model.MatchMatched,
	}
	router, auth := newTestRouter(t, svc)

	body, _ := json.Marshal(decisionRequest{Outcome: "LIKED"})
	target := "/api/sessions/" + uuid.NewString() + "/cards/10/decision"
	res := doRequest(t, router, auth, http.MethodPost, target, body)
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp decisionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != string(model.MatchMatched) {
		t.Fatalf("result = %s, want MATCHED", resp.Result)
	}
}

func TestDecide_BadOutcome(t *testing.T) {
	router, auth := newTestRouter(t, &stubService{})

	body, _ := json.Marshal(decisionRequest{Outcome: "MAYBE"})
	target := "/api/sessions/" + uuid.NewString() + "/cards/10/decision"
	res := doRequest(t, router, auth, http.MethodPost, target, body)
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestDecide_SubmissionFailed(t *testing.T) {
	svc := &stubService{
		decideErr: service.ErrSubmissionFailed,
	}
	router, auth := newTestRouter(t, svc)

	body, _ := json.Marshal(decisionRequest{Outcome: "LIKED"})
	target := "/api/sessions/" + uuid.NewString() + "/cards/10/decision"
	res := doRequest(t, router, auth, http.MethodPost, target, body)
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusAccepted)
	}

	var resp decisionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Result != string(model.MatchPending) {
		t.Fatalf("result = %s, want PENDING", resp.Result)
	}
}

func TestDecide_DoubleDecision(t *testing.T) {
	svc := &stubService{
		decideErr: reveal.ErrInvalidTransition,
	}
	router, auth := newTestRouter(t, svc)

	body, _ := json.Marshal(decisionRequest{Outcome: "PASSED"})
	target := "/api/sessions/" + uuid.NewString() + "/cards/10/decision"
	res := doRequest(t, router, auth, http.MethodPost, target, body)
	defer res.Body.Close()

	if res.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusConflict)
	}
}
