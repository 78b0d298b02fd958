package probes

import (
	"net"
	"strconv"
	"time"
)

const tcpDialTimeout = 5 * time.Second

// TCPProber implements the TCP health check probe
type TCPProber struct{}

// Execute implements the Prober interface for TCP probes
func (p *TCPProber) Execute(ctx *ProbeContext) ProbeResult {
	start := time.Now()

	host := ctx.Target.Host
	if host == "" {
		host = "localhost"
	}
	dialer := net.Dialer{Timeout: tcpDialTimeout}
	conn, err := dialer.DialContext(ctx.Ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(ctx.Target.Port)))
	if err != nil {
		return failure(start, "TCP check failed: %v", err)
	}
	defer conn.Close()

	return ProbeResult{
		Success:  true,
		Message:  "TCP check succeeded",
		Duration: time.Since(start),
	}
}
