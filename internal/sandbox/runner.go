package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/localjudge/engine/internal/contest"
)

// Limits caps the resources a submission's process tree may consume,
// enforced via a `ulimit -v` shell preamble ahead of the child process and
// a context deadline per test (spec §4.1 "strict resource caps").
type Limits struct {
	MemoryBytes     uint64
	CompileTimeout  time.Duration
	ExecutionGrace  time.Duration // added to a test's TimeLimitSeconds before the context deadline fires
}

// DefaultLimits matches the budgets a single-box contest judge runs under:
// generous enough for C++/C# compilation, tight enough that one hung
// submission cannot starve the worker pool.
var DefaultLimits = Limits{
	MemoryBytes:    256 << 20,
	CompileTimeout: 10 * time.Second,
	ExecutionGrace: 500 * time.Millisecond,
}

// processRunner is the real Runner: it writes source to a fresh scratch
// directory, compiles it if the language requires it, then runs it once per
// test under the memory cap and a per-test deadline. It does not isolate the
// network, and the source in the scratch dir stays writable.
type processRunner struct {
	limits Limits
}

// NewProcessRunner creates a Runner that actually executes submissions.
func NewProcessRunner(limits Limits) Runner {
	return &processRunner{limits: limits}
}

func (r *processRunner) Run(ctx context.Context, language contest.Language, source string, tests []contest.Test, checker string) (Result, error) {
	spec, ok := Lookup(language)
	if !ok {
		return Result{}, fmt.Errorf("sandbox: language %q not registered", language)
	}

	dir, err := os.MkdirTemp("", "judge-*")
	if err != nil {
		return Result{}, fmt.Errorf("sandbox: create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, spec.FileName)
	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return Result{}, fmt.Errorf("sandbox: write source: %w", err)
	}

	binPath := srcPath
	if len(spec.CompileCmd) > 0 {
		cctx, cancel := context.WithTimeout(ctx, r.limits.CompileTimeout)
		stderr, err := r.runCompile(cctx, dir, spec.CompileCmd)
		cancel()
		if err != nil {
			return Result{FatalError: VerdictCompilationError, Stderr: stderr}, nil
		}
		binPath = filepath.Join(dir, "main")
	}

	var results []TestResult
	for _, test := range tests {
		tr, fatal := r.runOne(ctx, dir, spec, binPath, test, checker)
		if fatal != "" {
			return Result{Tests: results, FatalError: fatal, Stderr: tr.Stderr}, nil
		}
		results = append(results, tr)
	}
	return Result{Tests: results}, nil
}

func (r *processRunner) runCompile(ctx context.Context, dir string, argv []string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stderr.String(), err
	}
	return "", nil
}

func (r *processRunner) runOne(ctx context.Context, dir string, spec LanguageSpec, binPath string, test contest.Test, checker string) (TestResult, Verdict) {
	timeout := time.Duration(test.TimeLimitSeconds*float64(time.Second)) + r.limits.ExecutionGrace
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := make([]string, len(spec.RunCmd))
	copy(argv, spec.RunCmd)
	for i, a := range argv {
		if a == "%BIN%" {
			argv[i] = binPath
		}
	}

	cmd := r.buildCommand(cctx, dir, argv)
	cmd.Stdin = strings.NewReader(normalizeNewlines(test.Input))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Seconds()

	if cctx.Err() == context.DeadlineExceeded {
		return TestResult{Verdict: VerdictTimeLimitExceeded, Duration: duration}, ""
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return TestResult{Verdict: VerdictRuntimeError, Stderr: stderr.String(), Duration: duration}, ""
		}
		// The submission's process never even ran to completion under our
		// control (couldn't exec, shell preamble failed), not the
		// submission's fault.
		return TestResult{Stderr: err.Error(), Duration: duration}, VerdictInternalError
	}

	got := stdout.String()
	want := normalizeNewlines(test.ExpectedOutput)
	var passed bool
	if checker != "" {
		ok, cerr := runExternalChecker(ctx, checker, test.Input, got, want, timeout)
		if cerr != nil {
			return TestResult{Stderr: cerr.Error(), Duration: duration}, VerdictJudgeError
		}
		passed = ok
	} else {
		passed = compareWhitespaceTokens(got, want)
	}

	if passed {
		return TestResult{Verdict: VerdictAccepted, Stdout: got, Duration: duration}, ""
	}
	return TestResult{Verdict: VerdictWrongAnswer, Stdout: got, Duration: duration}, ""
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// buildCommand wraps argv in a `ulimit -v` shell preamble so the submission
// process (and anything it forks) is capped at r.limits.MemoryBytes of
// virtual memory, then execs argv in place of the shell (spec §4.1 "memory
// cap"). No network namespace is assumed at this layer; that isolation
// belongs to the deployment (container/VM) the runner executes inside.
func (r *processRunner) buildCommand(ctx context.Context, dir string, argv []string) *exec.Cmd {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	script := fmt.Sprintf("ulimit -v %d; exec %s", r.limits.MemoryBytes/1024, strings.Join(quoted, " "))
	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = dir
	cmd.Env = []string{"PATH=/usr/bin:/bin"} // no inherited network-capable env
	return cmd
}
