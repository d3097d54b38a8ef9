package healing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"testmend/internal/logging"
)

// ExecVerifier runs the configured test command against a single test file
// and parses its JSON report from stdout. It is the default Verifier.
type ExecVerifier struct {
	// Command is the runner binary, e.g. "npx".
	Command string
	// Args precede the test file, e.g. ["playwright", "test", "--reporter=json"].
	Args []string
	// Dir is the working directory for the runner; empty means inherit.
	Dir string
}

// NewExecVerifier creates a verifier for the given runner command line.
func NewExecVerifier(command string, args ...string) *ExecVerifier {
	return &ExecVerifier{Command: command, Args: args}
}

// Verify implements Verifier. A non-zero exit with parseable JSON is a
// normal failed run; non-JSON output on failure is surfaced as a single
// failure carrying the raw output so classification still has material.
func (v *ExecVerifier) Verify(ctx context.Context, testFile string) (*VerifyResult, error) {
	timer := logging.StartTimer(logging.CategoryHealing, "verify")
	defer timer.Stop()

	args := append(append([]string(nil), v.Args...), testFile)
	cmd := exec.CommandContext(ctx, v.Command, args...)
	cmd.Dir = v.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("verify cancelled: %w", ctx.Err())
	}

	if result, ok := parseRunnerReport(stdout.Bytes()); ok {
		logging.HealingDebug("Verify %s: %s (%d failure(s))",
			testFile, result.Status, len(result.Failures.Tests))
		return result, nil
	}

	if runErr == nil {
		// Exit 0 without a parseable report still counts as green.
		return &VerifyResult{Status: VerifyPassed}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to run verifier %s: %w", v.Command, runErr)
	}

	message := strings.TrimSpace(stderr.String())
	if message == "" {
		message = strings.TrimSpace(stdout.String())
	}
	if message == "" {
		message = runErr.Error()
	}
	return &VerifyResult{
		Status: VerifyFailed,
		Failures: VerifyFailures{
			Tests: []TestFailure{{Test: testFile, Message: message}},
		},
	}, nil
}

// runnerReport is the subset of the runner's JSON report the loop needs.
type runnerReport struct {
	Status   string `json:"status"`
	Failures []struct {
		Test    string `json:"test"`
		Message string `json:"message"`
	} `json:"failures"`
}

// parseRunnerReport extracts a VerifyResult from runner stdout. Runners may
// print log noise before the report, so parsing starts at the first brace.
func parseRunnerReport(out []byte) (*VerifyResult, bool) {
	start := bytes.IndexByte(out, '{')
	if start < 0 {
		return nil, false
	}

	var report runnerReport
	if err := json.Unmarshal(out[start:], &report); err != nil {
		return nil, false
	}

	result := &VerifyResult{Status: VerifyFailed}
	if strings.EqualFold(report.Status, string(VerifyPassed)) {
		result.Status = VerifyPassed
	}
	for _, f := range report.Failures {
		result.Failures.Tests = append(result.Failures.Tests, TestFailure{
			Test:    f.Test,
			Message: f.Message,
		})
	}
	return result, true
}
