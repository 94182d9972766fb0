package health

import (
	"context"
	"time"
)

// Probe is a named readiness check against one of the gateway's stores.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Result struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ProbeRunner evaluates all probes with a bounded timeout. The same
// checks gate startup and back the readiness endpoint.
type ProbeRunner struct {
	probes  []Probe
	timeout time.Duration
}

func NewProbeRunner(timeout time.Duration, probes ...Probe) *ProbeRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ProbeRunner{probes: probes, timeout: timeout}
}

func (pr *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	ctx, cancel := context.WithTimeout(ctx, pr.timeout)
	defer cancel()

	ready := true
	results := make([]Result, 0, len(pr.probes))
	for _, probe := range pr.probes {
		if err := probe.Check(ctx); err != nil {
			ready = false
			results = append(results, Result{Name: probe.Name, Status: "unavailable", Error: err.Error()})
			continue
		}
		results = append(results, Result{Name: probe.Name, Status: "ok"})
	}
	return ready, results
}
