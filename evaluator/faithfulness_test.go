package evaluator

import (
	"context"
	"testing"

	"github.com/evalcore/evalcore/connector"
)

func TestFaithfulness_LowScoreFails(t *testing.T) {
	f := NewFaithfulness(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.2, "reasoning": "contradicts context"}`,
	}}, "gpt-4")

	v, err := f.Evaluate(context.Background(), Input{UserInput: "q", SystemResponse: "a", Context: map[string]any{"doc": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Passed {
		t.Errorf("expected low faithfulness score to fail, got %+v", v)
	}
}

func TestFaithfulness_ReasoningCarriedThrough(t *testing.T) {
	f := NewFaithfulness(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.95, "reasoning": "fully supported"}`,
	}}, "gpt-4")

	v, err := f.Evaluate(context.Background(), Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Reasoning != "fully supported" {
		t.Errorf("reasoning = %q", v.Reasoning)
	}
}
