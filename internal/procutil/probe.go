package procutil

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// ProbeResult is the outcome of a single HTTP readiness/health probe.
type ProbeResult struct {
	StatusCode int
	Err        error
}

// OK reports whether the probe counts as "process is listening and
// speaking HTTP": any 2xx or 404 (backends may not expose "/").
func (r ProbeResult) OK() bool {
	if r.Err != nil {
		return false
	}
	return r.StatusCode == 404 || (r.StatusCode >= 200 && r.StatusCode < 300)
}

var probeClient = resty.New()

// HTTPProbe performs a single GET against url with the given timeout.
func HTTPProbe(ctx context.Context, url string, timeout time.Duration) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := probeClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return ProbeResult{Err: err}
	}
	return ProbeResult{StatusCode: resp.StatusCode()}
}

// ReadyWait polls url until it passes HTTPProbe (status 200 specifically,
// per ready_wait's stricter readiness bar) or the attempt budget is
// exhausted.
func ReadyWait(ctx context.Context, url string, maxAttempts int, interval time.Duration) bool {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		res := HTTPProbe(ctx, url, interval)
		if res.Err == nil && res.StatusCode == 200 {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
	return false
}
