package probe

import (
	"context"
	"time"
)

// Result is the outcome of probing one address once.
type Result struct {
	Address   string        `json:"address"`
	Reachable bool          `json:"reachable"`
	Err       error         `json:"-"`
	Took      time.Duration `json:"took"`
	At        time.Time     `json:"at"`
}

// Run probes address with p and records timing. An error from p always
// yields Reachable false.
func Run(ctx context.Context, p Prober, address string) Result {
	start := time.Now()
	reachable, err := p.Probe(ctx, address)
	if err != nil {
		reachable = false
	}
	return Result{
		Address:   address,
		Reachable: reachable,
		Err:       err,
		Took:      time.Since(start),
		At:        start,
	}
}
