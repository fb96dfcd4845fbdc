// Package service реализует бизнес-логику сервиса бустер-паков.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkravcova/boosterpack-system/internal/model"
	"github.com/mkravcova/boosterpack-system/internal/repository"
	"github.com/mkravcova/boosterpack-system/internal/reveal"
)

// ErrSubmissionFailed возвращается, если лайк не удалось доставить в сервис
// матчей после всех повторов. Решение при этом уже записано локально и
// помечено для повторной отправки фоновым процессом.
var ErrSubmissionFailed = errors.New("like submission failed, queued for resync")

// EntitlementDeniedError возвращается, если пак категории пока нельзя открыть.
type EntitlementDeniedError struct {
	RetryAfter time.Duration
}

func (e *EntitlementDeniedError) Error() string {
	return fmt.Sprintf("pack not available, retry after %s", e.RetryAfter)
}

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	GetLastOpenedAt(ctx context.Context, userID int64, category model.PackCategory) (*time.Time, error)
	ConsumeEntitlement(ctx context.Context, userID int64, category model.PackCategory, cooldown time.Duration) error
	CreateSession(ctx context.Context, s *model.PackSession) error
	GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*model.PackSession, error)
	GetCard(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) (*model.SessionCard, error)
	UpdateCardState(ctx context.Context, sessionID uuid.UUID, cardID int64, from, to model.RevealState) error
	DecideCard(ctx context.Context, d model.Decision) (bool, error)
	UpdateDecisionMatch(ctx context.Context, sessionID uuid.UUID, cardID int64, status model.MatchResult, pendingResync bool) error
	GetDecisionsForResync(ctx context.Context, limit int) ([]repository.DecisionForResync, error)
	GetDecidedCardIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Matcher описывает контракт внешнего сервиса матчей.
type Matcher interface {
	Like(ctx context.Context, userID, cardID int64) (bool, error)
}

// PoolSource описывает контракт источника пула анкет-кандидатов.
type PoolSource interface {
	FetchEligible(ctx context.Context, category model.PackCategory, excludeIDs []int64) ([]model.Card, error)
}

// Drawer описывает контракт движка розыгрыша карточек.
type Drawer interface {
	Draw(pool []model.Card, n int) ([]model.Card, error)
}

// Service содержит бизнес-логику сервиса бустер-паков.
type Service struct {
	repo     Repository
	matcher  Matcher
	source   PoolSource
	drawer   Drawer
	packSize int
	cooldown time.Duration
}

// NewService создаёт новый сервис с указанными зависимостями.
func NewService(repo Repository, matcher Matcher, source PoolSource, drawer Drawer, packSize int, cooldown time.Duration) *Service {
	return &Service{
		repo:     repo,
		matcher:  matcher,
		source:   source,
		drawer:   drawer,
		packSize: packSize,
		cooldown: cooldown,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// PackAvailability сообщает, можно ли открыть пак категории сейчас, и сколько
// осталось ждать в противном случае. Чтение без побочных эффектов.
func (s *Service) PackAvailability(ctx context.Context, userID int64, category model.PackCategory) (bool, time.Duration, error) {
	lastOpenedAt, err := s.repo.GetLastOpenedAt(ctx, userID, category)
	if err != nil {
		return false, 0, err
	}

	if lastOpenedAt == nil {
		return true, 0, nil
	}

	elapsed := time.Since(*lastOpenedAt)
	if elapsed >= s.cooldown {
		return true, 0, nil
	}

	return false, s.cooldown - elapsed, nil
}

// OpenPack открывает пак: потребляет право на открытие, разыгрывает карточки
// и создаёт сессию с закрытыми карточками.
//
// Право на открытие списывается в момент consume, а не после удачного
// розыгрыша: если пул оказался недостаточным, слот считается потраченным.
func (s *Service) OpenPack(ctx context.Context, userID int64, category model.PackCategory) (*model.PackSession, error) {
	// Проигранную гонку за consume повторяем целиком один раз: скорее всего
	// пак только что открыл конкурентный запрос того же пользователя.
	consumed := false
	for attempt := 0; attempt < 2 && !consumed; attempt++ {
		allowed, retryAfter, err := s.PackAvailability(ctx, userID, category)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, &EntitlementDeniedError{RetryAfter: retryAfter}
		}

		err = s.repo.ConsumeEntitlement(ctx, userID, category, s.cooldown)
		if err != nil {
			if errors.Is(err, repository.ErrEntitlementConflict) {
				continue
			}
			return nil, err
		}
		consumed = true
	}
	if !consumed {
		return nil, &EntitlementDeniedError{RetryAfter: s.cooldown}
	}

	excludeIDs, err := s.repo.GetDecidedCardIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	pool, err := s.source.FetchEligible(ctx, category, excludeIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch eligible candidates: %w", err)
	}

	cards, err := s.drawer.Draw(pool, s.packSize)
	if err != nil {
		return nil, err
	}

	session := &model.PackSession{
		ID:       uuid.New(),
		UserID:   userID,
		Category: category,
		OpenedAt: time.Now(),
	}
	for i, c := range cards {
		session.Cards = append(session.Cards, model.SessionCard{
			Card:     c,
			Position: i,
			State:    model.StateClosed,
		})
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// GetSession возвращает сессию пользователя с текущим состоянием карточек.
func (s *Service) GetSession(ctx context.Context, userID int64, sessionID uuid.UUID) (*model.PackSession, error) {
	return s.repo.GetSession(ctx, userID, sessionID)
}

// BeginReveal начинает раскрытие карточки: CLOSED → FLIPPING.
func (s *Service) BeginReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) error {
	_, err := s.transitionCard(ctx, userID, sessionID, cardID, reveal.Begin)
	return err
}

// CompleteReveal завершает раскрытие карточки: FLIPPING → REVEALED.
// Атрибуты карточки становятся доступны только из этого вызова.
func (s *Service) CompleteReveal(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64) (*model.Card, error) {
	card, err := s.transitionCard(ctx, userID, sessionID, cardID, reveal.Complete)
	if err != nil {
		return nil, err
	}
	return &card.Card, nil
}

func (s *Service) transitionCard(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64,
	next func(model.RevealState) (model.RevealState, error)) (*model.SessionCard, error) {

	card, err := s.repo.GetCard(ctx, userID, sessionID, cardID)
	if err != nil {
		return nil, err
	}

	to, err := next(card.State)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateCardState(ctx, sessionID, cardID, card.State, to); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, fmt.Errorf("%w: state changed concurrently", reveal.ErrInvalidTransition)
		}
		return nil, err
	}

	card.State = to
	return card, nil
}

// Decide фиксирует решение по раскрытой карточке и сверяет его с сервисом
// матчей. Пропуск записывается локально без обращения к внешнему сервису.
func (s *Service) Decide(ctx context.Context, userID int64, sessionID uuid.UUID, cardID int64, outcome model.Outcome) (model.MatchResult, error) {
	card, err := s.repo.GetCard(ctx, userID, sessionID, cardID)
	if err != nil {
		return "", err
	}

	if _, err := reveal.Decide(card.State, outcome); err != nil {
		return "", err
	}

	decision := model.Decision{
		SessionID:   sessionID,
		CardID:      cardID,
		Outcome:     outcome,
		DecidedAt:   time.Now(),
		MatchStatus: model.MatchNone,
	}
	if outcome == model.OutcomeLiked {
		decision.MatchStatus = model.MatchPending
	}

	// Перевод REVEALED → DECIDED и запись решения выполняются одной
	// транзакцией: при сбое хранилища карточка остаётся REVEALED и decide
	// можно повторить. Условие по состоянию выигрывается ровно одним из
	// конкурентных вызовов; проигравший получает InvalidTransition, а не
	// второй лайк.
	inserted, err := s.repo.DecideCard(ctx, decision)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return "", fmt.Errorf("%w: card already decided", reveal.ErrInvalidTransition)
		}
		return "", err
	}

	if outcome == model.OutcomePassed {
		return model.MatchNone, nil
	}
	if !inserted {
		// Решение уже записано ранее — повторного обращения к сервису
		// матчей не будет, итог принесёт фоновая сверка.
		return model.MatchPending, nil
	}

	if s.matcher == nil {
		// Сервис матчей не сконфигурирован: лайк остаётся в очереди на
		// повторную отправку.
		if uerr := s.repo.UpdateDecisionMatch(ctx, sessionID, cardID, model.MatchPending, true); uerr != nil {
			return "", uerr
		}
		return model.MatchPending, ErrSubmissionFailed
	}

	matched, err := s.matcher.Like(ctx, userID, cardID)
	if err != nil {
		if uerr := s.repo.UpdateDecisionMatch(ctx, sessionID, cardID, model.MatchPending, true); uerr != nil {
			return "", uerr
		}
		return model.MatchPending, ErrSubmissionFailed
	}

	result := model.MatchPending
	if matched {
		result = model.MatchMatched
	}

	if err := s.repo.UpdateDecisionMatch(ctx, sessionID, cardID, result, false); err != nil {
		return "", err
	}

	return result, nil
}

// StartDecisionResync запускает фоновый процесс повторной отправки лайков,
// не доставленных в сервис матчей с первой попытки.
func (s *Service) StartDecisionResync(ctx context.Context) {
	if s.matcher == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processResyncBatch(ctx)
			}
		}
	}()
}

func (s *Service) processResyncBatch(ctx context.Context) {
	if s.matcher == nil {
		return
	}

	decisions, err := s.repo.GetDecisionsForResync(ctx, 100)
	if err != nil {
		return
	}

	for _, d := range decisions {
		matched, err := s.matcher.Like(ctx, d.UserID, d.CardID)
		if err != nil {
			continue
		}

		result := model.MatchPending
		if matched {
			result = model.MatchMatched
		}

		_ = s.repo.UpdateDecisionMatch(ctx, d.SessionID, d.CardID, result, false)
	}
}
