package pinfetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// ProbeStatus classifies the outcome of a HEAD probe
type ProbeStatus int

const (
	// ProbeFound means the resource answered 200
	ProbeFound ProbeStatus = iota
	// ProbeNotFound means the resource answered with a definitive non-200 status
	ProbeNotFound
	// ProbeTransient means the probe failed in a way that might succeed later
	ProbeTransient
)

func (s ProbeStatus) String() string {
	switch s {
	case ProbeFound:
		return "found"
	case ProbeNotFound:
		return "not_found"
	default:
		return "transient"
	}
}

// ProbeResult is the typed outcome of a single existence probe.
// Size is the declared Content-Length, or 0 when none was sent.
type ProbeResult struct {
	URL        string
	Status     ProbeStatus
	StatusCode int
	Size       int64
	Err        error
}

// Found reports whether the probe located the resource
func (p ProbeResult) Found() bool {
	return p.Status == ProbeFound
}

// probe issues a HEAD request for target. It never returns an error;
// failures are reported through the result's Status and Err.
func (r *Resolver) probe(ctx context.Context, branch, target string) ProbeResult {
	result := r.doProbe(ctx, target)
	r.metrics.ObserveProbe(branch, result.Status.String())
	return result
}

func (r *Resolver) doProbe(ctx context.Context, target string) ProbeResult {
	if err := r.limiter.Wait(ctx); err != nil {
		return ProbeResult{URL: target, Status: ProbeTransient, Err: err}
	}

	if r.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ProbeTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return ProbeResult{URL: target, Status: ProbeNotFound, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ProbeResult{URL: target, Status: ProbeTransient, Err: err}
	}
	resp.Body.Close()

	result := ProbeResult{URL: target, StatusCode: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusOK:
		result.Status = ProbeFound
		result.Size = contentLength(resp)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		result.Status = ProbeTransient
		result.Err = fmt.Errorf("HTTP error: %d", resp.StatusCode)
	default:
		result.Status = ProbeNotFound
	}
	return result
}

func contentLength(resp *http.Response) int64 {
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil && n > 0 {
		return n
	}
	return 0
}
