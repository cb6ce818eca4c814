package video

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

// runResult is the structured outcome of one tool invocation.
type runResult struct {
	Stdout     []byte
	StderrTail string
	ExitCode   int
	Duration   time.Duration
	Err        error
}

func (r runResult) ok() bool { return r.Err == nil && r.ExitCode == 0 }

// run executes bin with args, capturing stdout and the stderr tail.
func run(ctx context.Context, bin string, args ...string) runResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	return runResult{
		Stdout:     stdout.Bytes(),
		StderrTail: stderrBuf.String(),
		ExitCode:   exitCode,
		Duration:   time.Since(start),
		Err:        err,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
