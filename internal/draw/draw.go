// Package draw реализует взвешенный розыгрыш карточек для бустер-пака.
//
// Розыгрыш двухступенчатый: сначала для каждого слота выбирается уровень
// редкости по нормированным весам (бинарный поиск по кумулятивной сумме),
// затем внутри уровня карточка выбирается равновероятно без возвращения
// в пределах одной сессии (частичная перетасовка Фишера-Йетса).
package draw

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/mkravcova/boosterpack-system/internal/model"
)

// ErrInsufficientPool возвращается, если кандидатов меньше, чем слотов в паке.
var ErrInsufficientPool = errors.New("insufficient candidate pool")

// Engine выполняет розыгрыш с фиксированными весами уровней редкости.
type Engine struct {
	mu      sync.Mutex
	tiers   []model.RarityTier
	weights []float64
	cum     []float64
	rnd     *rand.Rand
}

// NewEngine создаёт движок розыгрыша. Веса должны быть положительными,
// нормировка выполняется здесь. Если rnd равен nil, используется
// источник, инициализированный текущим временем.
func NewEngine(weights map[model.RarityTier]float64, rnd *rand.Rand) (*Engine, error) {
	if len(weights) == 0 {
		return nil, errors.New("no rarity weights configured")
	}

	var total float64
	for tier, w := range weights {
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid weight %v for tier %s", w, tier)
		}
		total += w
	}

	e := &Engine{rnd: rnd}
	if e.rnd == nil {
		e.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	// Уровни идут в порядке возрастания редкости, чтобы розыгрыш был
	// детерминирован при фиксированном источнике случайности.
	for _, tier := range model.Rarities {
		w, ok := weights[tier]
		if !ok {
			continue
		}
		e.tiers = append(e.tiers, tier)
		e.weights = append(e.weights, w/total)
	}
	if len(e.tiers) != len(weights) {
		return nil, errors.New("weights contain unknown rarity tier")
	}

	var acc float64
	e.cum = make([]float64, len(e.weights))
	for i, w := range e.weights {
		acc += w
		e.cum[i] = acc
	}
	e.cum[len(e.cum)-1] = 1

	return e, nil
}

// Draw возвращает ровно n различных карточек из пула в порядке показа.
// Если суммарный размер пула меньше n, возвращает ErrInsufficientPool.
func (e *Engine) Draw(pool []model.Card, n int) ([]model.Card, error) {
	if n <= 0 {
		return nil, fmt.Errorf("draw count must be positive, got %d", n)
	}
	if len(pool) < n {
		return nil, fmt.Errorf("%w: have %d candidates, need %d", ErrInsufficientPool, len(pool), n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	remaining := make(map[model.RarityTier][]model.Card, len(e.tiers))
	for _, c := range pool {
		remaining[c.Rarity] = append(remaining[c.Rarity], c)
	}

	result := make([]model.Card, 0, n)
	for len(result) < n {
		idx := e.sampleTier()
		idx = e.fallbackTier(idx, remaining)
		if idx < 0 {
			// Пул в целом достаточен, сюда можно попасть только если в пуле
			// оказались карточки с уровнем вне сконфигурированных весов.
			return nil, fmt.Errorf("%w: all weighted tiers exhausted", ErrInsufficientPool)
		}

		tier := e.tiers[idx]
		cards := remaining[tier]
		j := e.rnd.Intn(len(cards))
		cards[j], cards[len(cards)-1] = cards[len(cards)-1], cards[j]
		result = append(result, cards[len(cards)-1])
		remaining[tier] = cards[:len(cards)-1]
	}

	return result, nil
}

// sampleTier выбирает индекс уровня редкости по кумулятивным весам.
func (e *Engine) sampleTier() int {
	u := e.rnd.Float64()
	return sort.SearchFloat64s(e.cum, u)
}

// fallbackTier возвращает индекс выбранного уровня, а если тот исчерпан —
// индекс ближайшего по весу непустого уровня. При равном расстоянии
// предпочтение отдаётся более частому уровню.
func (e *Engine) fallbackTier(idx int, remaining map[model.RarityTier][]model.Card) int {
	if len(remaining[e.tiers[idx]]) > 0 {
		return idx
	}

	best := -1
	bestDist := math.Inf(1)
	for i, tier := range e.tiers {
		if len(remaining[tier]) == 0 {
			continue
		}
		dist := math.Abs(e.weights[i] - e.weights[idx])
		if dist < bestDist || (dist == bestDist && best >= 0 && e.weights[i] > e.weights[best]) {
			best = i
			bestDist = dist
		}
	}
	return best
}
