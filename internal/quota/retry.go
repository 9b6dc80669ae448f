package quota

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrQuotaExhausted signals that the daily budget cannot cover a call.
// Callers must stop submitting metered work until the next reset.
var ErrQuotaExhausted = errors.New("quota exhausted")

// StatusError carries a non-2xx HTTP status from a metered provider so the
// scheduler can distinguish terminal client errors from retryable ones.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// FailureKind classifies a metered-call error for retry decisions.
type FailureKind int

const (
	// KindTransient errors are worth retrying with backoff.
	KindTransient FailureKind = iota
	// KindTerminal errors will not improve on retry (4xx other than 429).
	KindTerminal
	// KindQuota means the external source rejected the call for quota reasons;
	// the local budget must be resynced to exhausted.
	KindQuota
)

// retryDelays is the escalating wait sequence between attempts.
var retryDelays = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

const maxAttempts = 5

// Classify maps a metered-call error to a FailureKind. Anything that is not
// recognizably a quota rejection or a terminal client error is treated as
// transient.
func Classify(err error) FailureKind {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == 403 && containsQuotaReason(statusErr.Body):
			return KindQuota
		case statusErr.Code == 429:
			return KindTransient
		case statusErr.Code >= 400 && statusErr.Code < 500:
			return KindTerminal
		default:
			return KindTransient
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "quotaexceeded") || strings.Contains(msg, "dailylimitexceeded") {
		return KindQuota
	}
	return KindTransient
}

func containsQuotaReason(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "quotaexceeded") ||
		strings.Contains(lower, "dailylimitexceeded") ||
		strings.Contains(lower, "ratelimitexceeded")
}

// shouldRetry decides whether another attempt is allowed for the given
// classification. Pure function of its inputs; the delay between attempts
// comes from retryDelays.
func shouldRetry(kind FailureKind, attempt int) bool {
	if kind != KindTransient {
		return false
	}
	return attempt < maxAttempts-1
}

// retryDelay returns the wait before the next attempt after attempt n.
func retryDelay(attempt int) time.Duration {
	if attempt >= len(retryDelays) {
		return retryDelays[len(retryDelays)-1]
	}
	return retryDelays[attempt]
}
