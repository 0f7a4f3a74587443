package evaluator

import (
	"context"
	"fmt"

	"github.com/evalcore/evalcore/connector"
)

const faithfulnessDefaultThreshold = 0.7

// Faithfulness scores how well the system response's claims are supported
// by the supplied context, the mirror image of Hallucination: it grades
// support rather than fabrication, so a higher score is better here.
type Faithfulness struct {
	conn  connector.Connector
	model string
}

func NewFaithfulness(conn connector.Connector, model string) *Faithfulness {
	return &Faithfulness{conn: conn, model: model}
}

func (f *Faithfulness) Kind() string { return "faithfulness" }

func (f *Faithfulness) DefaultThreshold() float64 { return faithfulnessDefaultThreshold }

func (f *Faithfulness) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	prompt := fmt.Sprintf(`You are grading whether an AI response's claims are faithful to the given context.

## Context
%s

## Question
%s

## Response to grade
%s

Score faithfulness from 0.0 (claims contradict or aren't traceable to the context) to 1.0 (every claim is supported by the context). Respond with a JSON object: {"score": <number 0-1>, "reasoning": "<string>"}.`,
		formatContext(in.Context), in.UserInput, in.SystemResponse)

	jv, err := callJudge(ctx, f.conn, f.model, prompt)
	if err != nil {
		return Verdict{}, err
	}

	threshold := in.threshold(faithfulnessDefaultThreshold)
	return Verdict{
		Score:     jv.Score,
		Passed:    jv.Score >= threshold,
		Reasoning: jv.Reasoning,
	}, nil
}
