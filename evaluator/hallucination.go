package evaluator

import (
	"context"
	"fmt"

	"github.com/evalcore/evalcore/connector"
)

const hallucinationDefaultThreshold = 0.3

// Hallucination scores how much of the system response is unsupported by
// the supplied context. Unlike every other built-in kind, a lower score is
// better: passed is true when score <= threshold, not >=.
type Hallucination struct {
	conn  connector.Connector
	model string
}

func NewHallucination(conn connector.Connector, model string) *Hallucination {
	return &Hallucination{conn: conn, model: model}
}

func (h *Hallucination) Kind() string { return "hallucination" }

func (h *Hallucination) DefaultThreshold() float64 { return hallucinationDefaultThreshold }

func (h *Hallucination) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	prompt := fmt.Sprintf(`You are grading an AI response for hallucination: claims not supported by the given context.

## Context
%s

## Question
%s

## Response to grade
%s

Score the response from 0.0 (fully grounded in the context, no fabrication) to 1.0 (substantially hallucinated). Respond with a JSON object: {"score": <number 0-1>, "reasoning": "<string>"}.`,
		formatContext(in.Context), in.UserInput, in.SystemResponse)

	jv, err := callJudge(ctx, h.conn, h.model, prompt)
	if err != nil {
		return Verdict{}, err
	}

	threshold := in.threshold(hallucinationDefaultThreshold)
	return Verdict{
		Score:     jv.Score,
		Passed:    jv.Score <= threshold,
		Reasoning: jv.Reasoning,
	}, nil
}
