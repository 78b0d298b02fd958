package probes

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/hoist/pkg/log"
)

// HTTPProber issues one GET and treats any 2xx or 3xx status as healthy.
type HTTPProber struct{}

// Execute implements the Prober interface for HTTP probes
func (p *HTTPProber) Execute(ctx *ProbeContext) ProbeResult {
	start := time.Now()
	url := targetURL(ctx.Target)
	if ctx.Logger != nil {
		ctx.Logger.Debug("Executing HTTP probe", log.Str("url", url))
	}

	req, err := http.NewRequestWithContext(ctx.Ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(start, "Failed to create HTTP request: %v", err)
	}

	client := ctx.HTTPClient
	if client == nil {
		client = NewHTTPClient(DefaultHTTPTimeout, false)
	}
	resp, err := client.Do(req)
	if err != nil {
		return failure(start, "HTTP check of %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return ProbeResult{
			Success:  true,
			Message:  fmt.Sprintf("%s answered with status %d", url, resp.StatusCode),
			Duration: time.Since(start),
		}
	}
	return failure(start, "%s returned non-success status %d", url, resp.StatusCode)
}

func targetURL(t Target) string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := t.Host
	if host == "" {
		host = "localhost"
	}
	path := t.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, t.Port, path)
}
