package buildserver

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"
)

// defaultTimeout matches the original's 6,000,000 ms (~100 min) default.
const defaultTimeout = 6_000_000 * time.Millisecond

// pollInterval is the liveness-poll period (§4.8 process execution
// contract): "poll liveness at 20ms intervals".
const pollInterval = 20 * time.Millisecond

// runCommand spawns argv in dir and waits for it to finish, killing it
// early if looping is cleared (atomic flag, nonzero = keep going) or
// timeout elapses. It returns the combined stdout+stderr output and
// whether the process exited successfully.
func runCommand(ctx context.Context, argv []string, dir string, looping *int32, timeout time.Duration) (string, bool) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Start(); err != nil {
		return err.Error(), false
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			return buf.String(), err == nil
		case <-ticker.C:
			if atomic.LoadInt32(looping) == 0 {
				cancel()
			}
		}
	}
}

// commandLine renders argv as a space-joined command line (arguments are
// not quoted), for the "--- separator ---\n<command-line>" log entry.
func commandLine(argv []string) string {
	return strings.Join(argv, " ")
}

const logSeparator = "\n-------------------------------------------------------------------------------\n\n"

// execAndLog runs argv under dir, appends the separator/command-line/
// output to log, and returns whether it succeeded.
func execAndLog(ctx context.Context, argv []string, dir string, looping *int32, log *buildLog) bool {
	out, ok := runCommand(ctx, argv, dir, looping, 0)
	log.Append(logSeparator + commandLine(argv) + "\n" + out)
	return ok
}
