package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/nerrad567/iotmon/internal/infrastructure/config"
)

// Probe errors. A probe that returns any error reports the device as unreachable.
var (
	// ErrTimeout is returned when no reply arrived within the probe's bound.
	ErrTimeout = errors.New("probe: timed out")

	// ErrResolve is returned when the address has no usable IPv4 address.
	ErrResolve = errors.New("probe: cannot resolve address")

	// ErrFailed is returned when the probe itself could not be carried out.
	ErrFailed = errors.New("probe: failed")
)

// Method names accepted in probe.method.
const (
	MethodICMP = "icmp"
	MethodExec = "exec"
)

// Prober tests the reachability of a single address.
//
// Implementations must be safe for concurrent use and must return within a
// bounded time even if ctx has no deadline.
type Prober interface {
	Probe(ctx context.Context, address string) (bool, error)
}

// Func adapts an ordinary function to the Prober interface.
type Func func(ctx context.Context, address string) (bool, error)

// Probe calls f(ctx, address).
func (f Func) Probe(ctx context.Context, address string) (bool, error) {
	return f(ctx, address)
}

// New builds the prober selected by cfg.Method.
func New(cfg config.ProbeConfig) (Prober, error) {
	switch cfg.Method {
	case MethodICMP, "":
		return NewICMPProber(cfg.Timeout, cfg.Count, cfg.Privileged), nil
	case MethodExec:
		return NewExecProber(cfg.PingBinary, cfg.Timeout, cfg.Count), nil
	default:
		return nil, fmt.Errorf("unknown probe method %q", cfg.Method)
	}
}

// resolveIPv4 returns the first IPv4 address of host.
func resolveIPv4(ctx context.Context, resolver *net.Resolver, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%w: %s is not IPv4", ErrResolve, host)
	}

	ips, err := resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResolve, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s has no A record", ErrResolve, host)
	}
	return ips[0].To4(), nil
}

// attemptDeadline returns the earlier of now+timeout and ctx's deadline.
func attemptDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
