package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// compareWhitespaceTokens is the default checker: output matches if the
// whitespace-separated tokens are identical, ignoring trailing/leading
// blank lines and run-length of internal whitespace (spec §4.1 "Whitespace-
// token comparison (default checker)").
func compareWhitespaceTokens(got, want string) bool {
	g, w := strings.Fields(got), strings.Fields(want)
	if len(g) != len(w) {
		return false
	}
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}

// runExternalChecker runs an interpreted checker script under python3,
// feeding it the test input on stdin and passing the program's stdout and
// the expected output in the CHECKER_ACTUAL and CHECKER_EXPECTED environment
// variables (spec §3 "Task.checker (interpreted script)"). It returns
// (true, nil) on acceptance and (false, nil) on a clean rejection: exit 0
// accepts, exit 1 rejects. An exit 1 that leaves a Python traceback on
// stderr is an uncaught exception, not a rejection. Any other outcome (that
// traceback, a different exit code, a signal, a timeout, a failure to even
// start the interpreter) is the
// checker itself misbehaving, not a verdict on the submission, and is
// reported as a non-nil error so the caller can surface Judge Error instead
// of silently scoring Wrong Answer (spec §4.1 "any checker exception yields
// Judge Error"). The checker runs under the same wall-clock budget as the
// test it is judging.
func runExternalChecker(ctx context.Context, checkerPath, input, got, want string, timeout time.Duration) (bool, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "python3", checkerPath)
	cmd.Stdin = strings.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{"CHECKER_EXPECTED=" + want, "CHECKER_ACTUAL=" + got}

	err := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return false, fmt.Errorf("checker timed out after %s", timeout)
	}
	if err == nil {
		return true, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 &&
		!strings.Contains(stderr.String(), "Traceback (most recent call last)") {
		return false, nil
	}
	return false, fmt.Errorf("checker crashed: %w (stderr: %s)", err, stderr.String())
}
