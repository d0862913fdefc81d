package app

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// isTransient reports whether a step failure is worth retrying on a later
// pipeline run. Transient failures reset the record so the next batch picks
// it up again; the distinction only affects the error detail we record, both
// paths land in the error status.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		switch upstream.StatusCode {
		case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return upstream.StatusCode >= 500
	}
	return false
}

// upstreamBody extracts the response body from an upstream error, for keeping
// raw model output alongside failure records.
func upstreamBody(err error) string {
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		return upstream.Body
	}
	return ""
}
