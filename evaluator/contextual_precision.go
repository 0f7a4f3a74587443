package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/evalcore/evalcore/connector"
)

const (
	contextualPrecisionDefaultThreshold = 0.7
	chunkRelevanceThreshold             = 0.5
)

// ContextualPrecision scores whether the retrieved context chunks most
// relevant to the response were ranked ahead of irrelevant ones. When the
// case supplies an ordered "retrieved_contexts" list, relevance is decided
// by string similarity against the system response — a cheap, fully
// deterministic signal that needs no judge call. Only when no chunk list is
// available does it fall back to a single judge call, since there is then
// nothing to rank and the LLM-judge path is the only source of a score.
type ContextualPrecision struct {
	conn  connector.Connector
	model string
}

func NewContextualPrecision(conn connector.Connector, model string) *ContextualPrecision {
	return &ContextualPrecision{conn: conn, model: model}
}

func (c *ContextualPrecision) Kind() string { return "contextual-precision" }

func (c *ContextualPrecision) DefaultThreshold() float64 { return contextualPrecisionDefaultThreshold }

func (c *ContextualPrecision) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	chunks, ok := contextChunks(in.Context)
	if !ok {
		return c.evaluateByJudge(ctx, in)
	}
	return c.evaluateByRank(chunks, in)
}

// evaluateByRank computes precision@k over the retrieved chunks, treating a
// chunk as relevant when it is similar enough to the system response.
func (c *ContextualPrecision) evaluateByRank(chunks []string, in Input) (Verdict, error) {
	relevant := make([]bool, len(chunks))
	relevantCount := 0
	for i, chunk := range chunks {
		relevant[i] = similarity(chunk, in.SystemResponse) >= chunkRelevanceThreshold
		if relevant[i] {
			relevantCount++
		}
	}

	threshold := in.threshold(contextualPrecisionDefaultThreshold)
	if relevantCount == 0 {
		return Verdict{
			Score:     0,
			Passed:    0 >= threshold,
			Reasoning: fmt.Sprintf("none of %d retrieved chunks were relevant to the response", len(chunks)),
		}, nil
	}

	var precisionSum float64
	for k, isRelevant := range relevant {
		if !isRelevant {
			continue
		}
		precisionAtK := float64(countTrue(relevant[:k+1])) / float64(k+1)
		precisionSum += precisionAtK
	}
	score := precisionSum / float64(relevantCount)

	return Verdict{
		Score:  score,
		Passed: score >= threshold,
		Reasoning: fmt.Sprintf("%d of %d retrieved chunks were relevant; precision@k averaged over relevant positions is %.2f",
			relevantCount, len(chunks), score),
	}, nil
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func (c *ContextualPrecision) evaluateByJudge(ctx context.Context, in Input) (Verdict, error) {
	prompt := fmt.Sprintf(`You are grading whether the context available to an AI assistant was precisely relevant to the question it answered, with no retrieved-chunk ranking available to you.

## Question
%s

## Context
%s

## Response given
%s

Score contextual precision from 0.0 (context was irrelevant to the question) to 1.0 (context was precisely what was needed). Respond with a JSON object: {"score": <number 0-1>, "reasoning": "<string>"}.`,
		in.UserInput, formatContext(in.Context), in.SystemResponse)

	jv, err := callJudge(ctx, c.conn, c.model, prompt)
	if err != nil {
		return Verdict{}, err
	}

	threshold := in.threshold(contextualPrecisionDefaultThreshold)
	return Verdict{
		Score:     jv.Score,
		Passed:    jv.Score >= threshold,
		Reasoning: strings.TrimSpace(jv.Reasoning),
	}, nil
}
