// Package model содержит доменные сущности сервиса бустер-паков.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PackCategory описывает категорию намерения, к которой привязан пул анкет.
type PackCategory string

const (
	CategoryCasual     PackCategory = "casual"
	CategoryLongTerm   PackCategory = "long_term"
	CategoryFriendship PackCategory = "friendship"
	CategoryMarriage   PackCategory = "marriage"
	CategoryUnsure     PackCategory = "unsure"
	CategoryAny        PackCategory = "any"
)

// Categories перечисляет все сконфигурированные категории паков.
var Categories = []PackCategory{
	CategoryCasual,
	CategoryLongTerm,
	CategoryFriendship,
	CategoryMarriage,
	CategoryUnsure,
	CategoryAny,
}

// ParseCategory проверяет строку категории и возвращает типизированное значение.
func ParseCategory(s string) (PackCategory, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown pack category: %q", s)
}

// RarityTier описывает уровень редкости карточки.
type RarityTier string

const (
	RarityCommon    RarityTier = "COMMON"
	RarityUncommon  RarityTier = "UNCOMMON"
	RarityRare      RarityTier = "RARE"
	RarityEpic      RarityTier = "EPIC"
	RarityLegendary RarityTier = "LEGENDARY"
)

// Rarities перечисляет уровни редкости в порядке возрастания.
var Rarities = []RarityTier{
	RarityCommon,
	RarityUncommon,
	RarityRare,
	RarityEpic,
	RarityLegendary,
}

// DefaultRarityWeights задаёт веса розыгрыша уровней редкости по умолчанию.
var DefaultRarityWeights = map[RarityTier]float64{
	RarityCommon:    0.40,
	RarityUncommon:  0.30,
	RarityRare:      0.17,
	RarityEpic:      0.10,
	RarityLegendary: 0.03,
}

// Card представляет неизменяемый снимок анкеты-кандидата на момент розыгрыша.
type Card struct {
	ID       int64
	Rarity   RarityTier
	Category PackCategory
	Name     string
	Age      int
	Bio      string
	PhotoURL string
}

// RevealState описывает состояние раскрытия карточки внутри сессии.
type RevealState string

const (
	StateClosed   RevealState = "CLOSED"
	StateFlipping RevealState = "FLIPPING"
	StateRevealed RevealState = "REVEALED"
	StateDecided  RevealState = "DECIDED"
)

// Outcome описывает решение пользователя по раскрытой карточке.
type Outcome string

const (
	OutcomeLiked  Outcome = "LIKED"
	OutcomePassed Outcome = "PASSED"
)

// ParseOutcome проверяет строку решения и возвращает типизированное значение.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeLiked, OutcomePassed:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("unknown outcome: %q", s)
}

// MatchResult описывает статус сверки решения с внешним сервисом матчей.
type MatchResult string

const (
	// MatchNone — пропуск, обращение к сервису матчей не требуется.
	MatchNone MatchResult = "NONE"
	// MatchPending — лайк отправлен, вторая сторона ещё не отреагировала.
	MatchPending MatchResult = "PENDING"
	// MatchMatched — взаимный лайк, матч создан.
	MatchMatched MatchResult = "MATCHED"
)

// Decision описывает зафиксированное решение по одной карточке сессии.
type Decision struct {
	SessionID     uuid.UUID
	CardID        int64
	Outcome       Outcome
	DecidedAt     time.Time
	MatchStatus   MatchResult
	PendingResync bool
}

// PackSession описывает одно открытие пака и состояние его карточек.
type PackSession struct {
	ID       uuid.UUID
	UserID   int64
	Category PackCategory
	OpenedAt time.Time
	Cards    []SessionCard
}

// SessionCard связывает вытянутую карточку с её состоянием раскрытия в сессии.
type SessionCard struct {
	Card     Card
	Position int
	State    RevealState
	Outcome  *Outcome
}

// Complete сообщает, по всем ли карточкам сессии принято решение.
// Это производное свойство, отдельного перехода состояния у сессии нет.
func (s *PackSession) Complete() bool {
	for _, c := range s.Cards {
		if c.Outcome == nil {
			return false
		}
	}
	return len(s.Cards) > 0
}
