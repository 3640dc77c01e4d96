package resync

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Classify labels err for metrics and logging, the same taxonomy as the
// teacher's internal/core/resilience.classifyError: timeout, network,
// context cancellation/deadline, dns, rate_limit, or unknown ("none" for a
// nil error).
func Classify(err error) string {
	if err == nil {
		return "none"
	}

	if errors.Is(err, context.Canceled) {
		return "context_cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "context_deadline"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED),
			errors.Is(opErr.Err, syscall.ECONNRESET),
			errors.Is(opErr.Err, syscall.ENETUNREACH),
			errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return "network"
		default:
			return "network"
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return "rate_limit"
	default:
		return "unknown"
	}
}
