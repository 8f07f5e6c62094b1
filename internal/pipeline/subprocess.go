package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	. "github.com/roelfdiedericks/pail/internal/logging"
)

// invokeGenerator runs the generator binary with workDir as its working
// directory, capturing stdout/stderr into a single accumulated log.
// Per phase 4 of the generation pipeline, a non-zero exit is not treated
// as failure here — some generators exit non-zero but still produce a
// valid output.md, so the caller parses the file regardless of exit
// code. Only a hard timeout aborts the run.
func invokeGenerator(ctx context.Context, binary string, args []string, workDir string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), "OPENCODE_ENABLE_EXA=1")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	runErr := cmd.Run()
	L_elapsed(start, "pipeline: generator exited", "binary", binary, "workdir", workDir)

	if ctx.Err() == context.DeadlineExceeded {
		return output.String(), fmt.Errorf("generator timed out after %s", timeout)
	}
	if runErr != nil {
		L_warn("pipeline: generator exited non-zero, parsing output.md anyway", "binary", binary, "error", runErr)
	}
	return output.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
