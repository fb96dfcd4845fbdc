// Package reveal реализует машину состояний раскрытия карточки.
//
// Переходы строго вперёд: CLOSED → FLIPPING → REVEALED → DECIDED.
// DECIDED — терминальное состояние, повторное решение по карточке запрещено.
package reveal

import (
	"errors"
	"fmt"

	"github.com/mkravcova/boosterpack-system/internal/model"
)

// ErrInvalidTransition возвращается при попытке перехода не по порядку.
// Такая ошибка означает дефект вызывающей стороны, а не действие пользователя.
var ErrInvalidTransition = errors.New("invalid reveal transition")

// Begin выполняет переход CLOSED → FLIPPING.
func Begin(cur model.RevealState) (model.RevealState, error) {
	if cur != model.StateClosed {
		return cur, fmt.Errorf("%w: begin reveal from %s", ErrInvalidTransition, cur)
	}
	return model.StateFlipping, nil
}

// Complete выполняет переход FLIPPING → REVEALED.
// Только после этого перехода атрибуты карточки становятся видимыми.
func Complete(cur model.RevealState) (model.RevealState, error) {
	if cur != model.StateFlipping {
		return cur, fmt.Errorf("%w: complete reveal from %s", ErrInvalidTransition, cur)
	}
	return model.StateRevealed, nil
}

// Decide выполняет переход REVEALED → DECIDED с зафиксированным решением.
// Повторный вызов для уже решённой карточки — ошибка, а не тихий no-op:
// иначе лайк ушёл бы в сервис матчей дважды.
func Decide(cur model.RevealState, outcome model.Outcome) (model.RevealState, error) {
	switch outcome {
	case model.OutcomeLiked, model.OutcomePassed:
	default:
		return cur, fmt.Errorf("%w: unknown outcome %q", ErrInvalidTransition, outcome)
	}

	if cur != model.StateRevealed {
		return cur, fmt.Errorf("%w: decide from %s", ErrInvalidTransition, cur)
	}
	return model.StateDecided, nil
}

// Terminal сообщает, является ли состояние терминальным.
func Terminal(s model.RevealState) bool {
	return s == model.StateDecided
}
