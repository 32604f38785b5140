package nameserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/scribefs/scribefs/internal/logger"
)

// CommandExecutor runs EXEC file contents through an external
// interpreter, feeding the content on stdin. The interpreter choice is
// an operator decision; the server never guesses one.
type CommandExecutor struct {
	// Command is the interpreter invocation, e.g. "/bin/sh" or
	// "python3 -". Split on whitespace; the first token is the binary.
	Command string

	// Timeout bounds a single run. Zero means 30 seconds.
	Timeout time.Duration
}

// Exec implements Executor.
func (e *CommandExecutor) Exec(ctx context.Context, content string) (string, error) {
	fields := strings.Fields(e.Command)
	if len(fields) == 0 {
		return "", fmt.Errorf("no exec command configured")
	}

	timeout := e.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = strings.NewReader(content)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	logger.Debug("exec finished",
		"command", fields[0],
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("execution timed out after %s", timeout)
		}
		// Interpreter diagnostics are part of the result.
		if out.Len() > 0 {
			return "", fmt.Errorf("%s", strings.TrimRight(out.String(), "\n"))
		}
		return "", err
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
