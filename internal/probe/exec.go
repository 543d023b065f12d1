package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"time"
)

// pingInterval is the pause iputils ping makes between requests.
const pingInterval = time.Second

// ExecProber shells out to the system ping binary.
type ExecProber struct {
	binary  string
	timeout time.Duration
	count   int
}

// NewExecProber creates a prober running `<binary> -c <count> -W <timeout> <address>`.
func NewExecProber(binary string, timeout time.Duration, count int) *ExecProber {
	if binary == "" {
		binary = "ping"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if count <= 0 {
		count = defaultCount
	}
	return &ExecProber{binary: binary, timeout: timeout, count: count}
}

// Args returns the command line arguments used for address.
func (p *ExecProber) Args(address string) []string {
	waitSeconds := int(math.Ceil(p.timeout.Seconds()))
	if waitSeconds < 1 {
		waitSeconds = 1
	}
	return []string{
		"-c", strconv.Itoa(p.count),
		"-W", strconv.Itoa(waitSeconds),
		"--", address,
	}
}

// Probe runs ping and maps its exit status: 0 is reachable, 1 is no reply,
// anything else is an error.
func (p *ExecProber) Probe(ctx context.Context, address string) (bool, error) {
	bound := time.Duration(p.count)*(p.timeout+pingInterval) + time.Second
	ctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, p.Args(address)...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return true, nil
	}

	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: %s after %s", ErrTimeout, address, bound)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s exited with status %d: %s",
			ErrFailed, p.binary, exitErr.ExitCode(), firstLine(output))
	}
	return false, fmt.Errorf("%w: running %s: %v", ErrFailed, p.binary, err)
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
