package evaluator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evalcore/evalcore/connector"
)

var (
	mu       sync.RWMutex
	registry = make(map[string]Evaluator)

	registerDefaultsOnce sync.Once
)

// Register adds e to the registry under e.Kind(). Registration is static:
// a duplicate kind is a programming error and fails fast rather than
// silently overwriting a previous registration.
func Register(e Evaluator) {
	mu.Lock()
	defer mu.Unlock()
	kind := e.Kind()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("evaluator: kind %q already registered", kind))
	}
	registry[kind] = e
}

// Get looks up an evaluator by kind. The Runner treats a false ok as
// "unknown_evaluator" and records the case-result as skipped rather than
// treating it as an error of its own.
func Get(kind string) (Evaluator, bool) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := registry[kind]
	return e, ok
}

// Kinds returns every registered kind, sorted, for diagnostics and tests.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// RegisterDefaults registers the four built-in evaluator kinds
// (hallucination, answer-relevancy, faithfulness, contextual-precision)
// exactly once per process. cmd/evalcore calls this at startup; calling it
// again (e.g. from multiple test files importing the package) is a no-op
// rather than a panic, since the duplicate would otherwise be a Register
// call racing itself rather than a real configuration mistake.
func RegisterDefaults(conn connector.Connector, judgeModel string) {
	registerDefaultsOnce.Do(func() {
		Register(NewHallucination(conn, judgeModel))
		Register(NewAnswerRelevancy(conn, judgeModel))
		Register(NewFaithfulness(conn, judgeModel))
		Register(NewContextualPrecision(conn, judgeModel))
	})
}

// resetForTest clears the registry and RegisterDefaults's once-guard. It is
// only called from this package's own tests.
func resetForTest() {
	mu.Lock()
	registry = make(map[string]Evaluator)
	mu.Unlock()
	registerDefaultsOnce = sync.Once{}
}
