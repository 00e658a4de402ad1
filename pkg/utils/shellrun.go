package utils

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// RunCommand executes a command and returns its stdout, stderr and exit
// code. A non-zero exit is reported through the code, not the error; callers
// decide what a failed conversion means for their batch.
func RunCommand(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}
