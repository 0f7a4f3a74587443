package evaluator

import (
	"context"
	"testing"

	"github.com/evalcore/evalcore/connector"
)

func TestAnswerRelevancy_DefaultThresholdSevenTenths(t *testing.T) {
	ar := NewAnswerRelevancy(fakeConnector{resp: connector.Response{
		Text: `{"score": 0.75, "reasoning": "on topic"}`,
	}}, "gpt-4")

	v, err := ar.Evaluate(context.Background(), Input{UserInput: "q", SystemResponse: "a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Passed {
		t.Errorf("expected 0.75 to pass the default 0.7 threshold, got %+v", v)
	}
}

func TestAnswerRelevancy_JudgeErrorPropagates(t *testing.T) {
	ar := NewAnswerRelevancy(fakeConnector{err: context.DeadlineExceeded}, "gpt-4")

	_, err := ar.Evaluate(context.Background(), Input{UserInput: "q", SystemResponse: "a"})
	if err == nil {
		t.Fatal("expected judge error to propagate")
	}
}
