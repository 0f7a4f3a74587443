package evaluator

import (
	"context"
	"fmt"

	"github.com/evalcore/evalcore/connector"
)

const answerRelevancyDefaultThreshold = 0.7

// AnswerRelevancy scores how directly the system response addresses the
// question asked, independent of factual correctness.
type AnswerRelevancy struct {
	conn  connector.Connector
	model string
}

func NewAnswerRelevancy(conn connector.Connector, model string) *AnswerRelevancy {
	return &AnswerRelevancy{conn: conn, model: model}
}

func (a *AnswerRelevancy) Kind() string { return "answer-relevancy" }

func (a *AnswerRelevancy) DefaultThreshold() float64 { return answerRelevancyDefaultThreshold }

func (a *AnswerRelevancy) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	prompt := fmt.Sprintf(`You are grading whether an AI response is relevant to the question it was given.

## Question
%s

## Response to grade
%s

Score relevance from 0.0 (does not address the question at all) to 1.0 (directly and completely addresses it). Respond with a JSON object: {"score": <number 0-1>, "reasoning": "<string>"}.`,
		in.UserInput, in.SystemResponse)

	jv, err := callJudge(ctx, a.conn, a.model, prompt)
	if err != nil {
		return Verdict{}, err
	}

	threshold := in.threshold(answerRelevancyDefaultThreshold)
	return Verdict{
		Score:     jv.Score,
		Passed:    jv.Score >= threshold,
		Reasoning: jv.Reasoning,
	}, nil
}
