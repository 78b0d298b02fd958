// Package probes implements the point-in-time checks used by readiness
// polling and the verifier.
package probes

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/rzbill/hoist/pkg/log"
)

// DefaultHTTPTimeout bounds a single HTTP probe.
const DefaultHTTPTimeout = 10 * time.Second

// ProbeResult represents the result of a health check probe
type ProbeResult struct {
	Success  bool
	Message  string
	Duration time.Duration
}

// Target identifies what a probe checks.
type Target struct {
	// Container is the exact container ID or name.
	Container string

	Scheme string
	Host   string
	Port   int
	Path   string
}

// ProbeContext contains all context needed to execute a probe
type ProbeContext struct {
	// Context for cancellation and timeouts
	Ctx context.Context

	Logger log.Logger

	Target Target

	// HTTP client for HTTP probes
	HTTPClient *http.Client
}

// Prober defines the interface for health check probes
type Prober interface {
	// Execute runs the probe and returns the result
	Execute(ctx *ProbeContext) ProbeResult
}

// NewHTTPClient returns a client for HTTP probes. Redirects are not
// followed so a 3xx answer is reported as-is.
func NewHTTPClient(timeout time.Duration, insecureTLS bool) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed service certificates
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func failure(start time.Time, format string, args ...interface{}) ProbeResult {
	return ProbeResult{
		Success:  false,
		Message:  fmt.Sprintf(format, args...),
		Duration: time.Since(start),
	}
}
