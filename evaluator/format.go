package evaluator

import (
	"fmt"
	"sort"
	"strings"
)

// formatContext renders a case's free-form context map into judge-prompt
// text. Keys are sorted so the same context always produces the same
// prompt, which matters for keeping model-driven evaluators deterministic.
func formatContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return "(no context provided)"
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %v\n", k, ctx[k])
	}
	return b.String()
}

// contextChunks extracts an ordered list of retrieved-context strings from
// ctx["retrieved_contexts"], if present, for evaluators that can score
// per-chunk relevance without a judge call.
func contextChunks(ctx map[string]any) ([]string, bool) {
	raw, ok := ctx["retrieved_contexts"]
	if !ok {
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok || len(items) == 0 {
		return nil, false
	}

	chunks := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		chunks = append(chunks, s)
	}
	if len(chunks) == 0 {
		return nil, false
	}
	return chunks, true
}
