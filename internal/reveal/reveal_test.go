package reveal

import (
	"errors"
	"testing"

	"github.com/mkravcova/boosterpack-system/internal/model"
)

func TestLegalSequence(t *testing.T) {
	state := model.StateClosed

	state, err := Begin(state)
	if err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if state != model.StateFlipping {
		t.Fatalf("state = %s, want FLIPPING", state)
	}

	state, err = Complete(state)
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if state != model.StateRevealed {
		t.Fatalf("state = %s, want REVEALED", state)
	}

	state, err = Decide(state, model.OutcomeLiked)
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if state != model.StateDecided {
		t.Fatalf("state = %s, want DECIDED", state)
	}
	if !Terminal(state) {
		t.Fatalf("DECIDED must be terminal")
	}
}

func TestIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		from model.RevealState
		call func(model.RevealState) (model.RevealState, error)
	}{
		{"begin from FLIPPING", model.StateFlipping, Begin},
		{"begin from REVEALED", model.StateRevealed, Begin},
		{"begin from DECIDED", model.StateDecided, Begin},
		{"complete from CLOSED", model.StateClosed, Complete},
		{"complete from REVEALED", model.StateRevealed, Complete},
		{"complete from DECIDED", model.StateDecided, Complete},
		{"decide from CLOSED", model.StateClosed, func(s model.RevealState) (model.RevealState, error) {
			return Decide(s, model.OutcomeLiked)
		}},
		{"decide from FLIPPING", model.StateFlipping, func(s model.RevealState) (model.RevealState, error) {
			return Decide(s, model.OutcomePassed)
		}},
		{"decide from DECIDED", model.StateDecided, func(s model.RevealState) (model.RevealState, error) {
			return Decide(s, model.OutcomeLiked)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call(tt.from)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("err = %v, want ErrInvalidTransition", err)
			}
			if got != tt.from {
				t.Fatalf("state changed on failed transition: %s -> %s", tt.from, got)
			}
		})
	}
}

func TestDecide_UnknownOutcome(t *testing.T) {
	got, err := Decide(model.StateRevealed, "MAYBE")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if got != model.StateRevealed {
		t.Fatalf("state changed on failed transition: %s", got)
	}
}
