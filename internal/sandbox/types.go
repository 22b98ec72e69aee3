// Package sandbox runs one submission's compiled program against a task's
// tests in a throwaway scratch directory under a virtual-memory cap and a
// per-test wall limit (spec §4.1 "Sandbox Runner"). It does not isolate the
// network or mount the code tree read-only.
package sandbox

import (
	"context"

	"github.com/localjudge/engine/internal/contest"
)

// Verdict is the per-test outcome vocabulary.
type Verdict string

const (
	VerdictAccepted          Verdict = "Accepted"
	VerdictWrongAnswer       Verdict = "Wrong Answer"
	VerdictTimeLimitExceeded Verdict = "Time Limit Exceeded"
	VerdictRuntimeError      Verdict = "Runtime Error"
	VerdictCompilationError  Verdict = "Compilation Error"
	// VerdictJudgeError is the outcome of a checker that raised rather than
	// cleanly rejected the answer (spec §4.1 "any checker exception yields
	// Judge Error"): a crash, a timeout, or a non-checker-convention exit.
	VerdictJudgeError Verdict = "Judge Error"
	// VerdictInternalError covers sandbox-harness failures that are not the
	// submitted program's fault (the runtime couldn't even be exec'd).
	VerdictInternalError Verdict = "Internal Error"
)

// TestResult is the outcome of running one test.
type TestResult struct {
	Verdict  Verdict
	Stdout   string
	Stderr   string
	Duration float64 // seconds
}

// Result is the aggregate outcome of one submission run: every test's
// result plus an overall verdict. A non-empty FatalError stops the run: a
// Compilation Error is returned before the test loop starts, while a Judge
// Error or Internal Error ends the loop early and Tests holds only the tests
// that completed before it.
type Result struct {
	Tests      []TestResult
	FatalError Verdict // empty unless Compilation Error, Judge Error, or Internal Error
	Stderr     string  // compiler/system/checker diagnostics when FatalError is set
}

// Passed reports how many tests in the result came back Accepted.
func (r Result) Passed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Verdict == VerdictAccepted {
			n++
		}
	}
	return n
}

// OverallVerdict returns the submission's headline verdict: the fatal error
// if one occurred, the first non-Accepted test's verdict otherwise, or
// Accepted if every test passed.
func (r Result) OverallVerdict() Verdict {
	if r.FatalError != "" {
		return r.FatalError
	}
	for _, t := range r.Tests {
		if t.Verdict != VerdictAccepted {
			return t.Verdict
		}
	}
	return VerdictAccepted
}

// Runner executes a submission's source against a task's tests. Implemented
// by processRunner for real sandboxed execution and by FakeRunner for tests,
// mirroring the Provider/MockProvider split the engine uses for the
// out-of-process call it wraps.
type Runner interface {
	Run(ctx context.Context, language contest.Language, source string, tests []contest.Test, checker string) (Result, error)
}
