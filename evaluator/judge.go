package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evalcore/evalcore/connector"
)

// judgeVerdict is the JSON envelope every judge prompt in this package asks
// the model to reply with. It is the single-score analogue of
// agent/evaluation/llm_judge.go's dimension-scored JudgeResult, narrowed to
// the one number and one reasoning string this package's Verdict needs.
type judgeVerdict struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// callJudge sends prompt to conn as a single low-temperature user turn and
// parses the JSON object embedded in the reply, the same extract-then-parse
// approach as llm_judge.go's extractJSON/parseResponse.
func callJudge(ctx context.Context, conn connector.Connector, model, prompt string) (judgeVerdict, error) {
	if conn == nil {
		return judgeVerdict{}, fmt.Errorf("evaluator: no model connector configured for LLM-judge call")
	}

	req := connector.Request{
		ModelID: model,
		Messages: []connector.Message{
			{Role: "user", Content: prompt},
		},
		Parameters: map[string]any{"temperature": 0.1},
	}

	resp, err := conn.Invoke(ctx, req)
	if err != nil {
		return judgeVerdict{}, fmt.Errorf("evaluator: judge call failed: %w", err)
	}
	return parseJudgeJSON(resp.Text)
}

func parseJudgeJSON(text string) (judgeVerdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return judgeVerdict{}, fmt.Errorf("evaluator: no JSON object found in judge response")
	}

	var v judgeVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return judgeVerdict{}, fmt.Errorf("evaluator: invalid judge JSON: %w", err)
	}

	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	return v, nil
}
