package evaluator

import (
	"context"
	"testing"

	"github.com/evalcore/evalcore/connector"
)

func TestHallucination_LowScorePasses(t *testing.T) {
	h := NewHallucination(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.1, "reasoning": "grounded"}`,
	}}, "gpt-4")

	v, err := h.Evaluate(context.Background(), Input{UserInput: "q", SystemResponse: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Passed {
		t.Errorf("expected a low hallucination score to pass, got %+v", v)
	}
}

func TestHallucination_HighScoreFails(t *testing.T) {
	h := NewHallucination(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.9, "reasoning": "fabricated"}`,
	}}, "gpt-4")

	v, err := h.Evaluate(context.Background(), Input{UserInput: "q", SystemResponse: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Passed {
		t.Errorf("expected a high hallucination score to fail, got %+v", v)
	}
}

func TestHallucination_ExplicitThresholdOverridesDefault(t *testing.T) {
	h := NewHallucination(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.5, "reasoning": "borderline"}`,
	}}, "gpt-4")

	strict := 0.4
	v, err := h.Evaluate(context.Background(), Input{Threshold: &strict})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Passed {
		t.Errorf("score 0.5 should fail a stricter 0.4 threshold")
	}

	lenient := 0.6
	v, err = h.Evaluate(context.Background(), Input{Threshold: &lenient})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Passed {
		t.Errorf("score 0.5 should pass a more lenient 0.6 threshold")
	}
}
