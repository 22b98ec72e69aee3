package sandbox

import (
	"context"
	"sync"

	"github.com/localjudge/engine/internal/contest"
)

// FakeRunner implements Runner with configurable canned results for testing,
// modeled directly on llm.MockProvider's cycle/replay/error-injection
// fields: index-based responses by default, an optional MatchFunc that
// takes priority, and call-history tracking for assertions.
type FakeRunner struct {
	mu          sync.Mutex
	Results     []Result
	Errors      []error
	CallCount   int
	MatchFunc   func(language contest.Language, source string) *Result
}

// NewFakeRunner creates a FakeRunner cycling through the given results.
func NewFakeRunner(results []Result) *FakeRunner {
	return &FakeRunner{Results: results}
}

func (f *FakeRunner) Run(ctx context.Context, language contest.Language, source string, tests []contest.Test, checker string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := f.CallCount
	f.CallCount++

	if idx < len(f.Errors) && f.Errors[idx] != nil {
		return Result{}, f.Errors[idx]
	}
	if f.MatchFunc != nil {
		if r := f.MatchFunc(language, source); r != nil {
			return *r, nil
		}
	}
	if len(f.Results) > 0 {
		return f.Results[idx%len(f.Results)], nil
	}

	// Default: accept every test, since most tests only care about the
	// dispatcher/contest-state wiring, not sandbox behavior itself.
	out := make([]TestResult, len(tests))
	for i := range tests {
		out[i] = TestResult{Verdict: VerdictAccepted}
	}
	return Result{Tests: out}, nil
}

// GetCallCount returns how many times Run has been invoked.
func (f *FakeRunner) GetCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CallCount
}
