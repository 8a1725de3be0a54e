package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FromStatus classifies a non-2xx provider response.
// 408, 429 and 5xx are transient; every other status is a rejection.
func FromStatus(provider string, status int, body string, retryAfter string) *Error {
	msg := fmt.Sprintf("%s returned HTTP %d", provider, status)
	if body = strings.TrimSpace(body); body != "" {
		if len(body) > 300 {
			body = body[:300] + "..."
		}
		msg += ": " + body
	}

	var e *Error
	switch {
	case status == http.StatusTooManyRequests:
		e = New(ErrCodeRateLimited, msg, nil)
		e.RetryDelay = parseRetryAfter(retryAfter)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		e = New(ErrCodeNetworkTimeout, msg, nil)
	case status >= 500:
		e = New(ErrCodeProviderUnavailable, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e = New(ErrCodeProviderRejected, msg, nil).
			WithSuggestion("check the provider API key and its permissions")
	default:
		e = New(ErrCodeProviderRejected, msg, nil)
	}
	return e.WithDetail("status", strconv.Itoa(status))
}

// FromTransport classifies an error returned by http.Client.Do.
// Cancellation of ctx is returned unchanged so callers can stop promptly.
func FromTransport(ctx context.Context, provider string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return New(ErrCodeNetworkTimeout, provider+" request timed out", err)
	}
	return New(ErrCodeNetworkUnavailable, provider+" is unreachable", err)
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
