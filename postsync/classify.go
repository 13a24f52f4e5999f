// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"strings"
	"time"
)

// ErrorClass drives the retry-vs-fail decision for a failed send.
type ErrorClass string

const (
	// ClassTransient failures are likely to succeed on retry (network,
	// timeout, 5xx).
	ClassTransient ErrorClass = "transient"
	// ClassPermanent failures will fail again unchanged (validation, 4xx).
	ClassPermanent ErrorClass = "permanent"
	// ClassUnknown is the conservative default: not retried automatically.
	ClassUnknown ErrorClass = "unknown"
)

// Permanent patterns are checked before transient ones: an error mentioning
// both (e.g. "400 network error") is permanent. The ordering is a deliberate,
// observable contract.
var permanentPatterns = []string{
	"validation",
	"400",
	"401",
	"403",
	"404",
	"invalid",
	"required",
	"unauthorized",
	"forbidden",
}

var transientPatterns = []string{
	"network",
	"timeout",
	"timed out",
	"econnrefused",
	"connection refused",
	"enotfound",
	"no such host",
	"etimedout",
	"fetch failed",
	"500",
	"501",
	"502",
	"503",
	"504",
	"server error",
	"temporarily unavailable",
}

// ClassifyError classifies a send failure from its message text.
func ClassifyError(message string) ErrorClass {
	msg := strings.ToLower(message)
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return ClassPermanent
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassUnknown
}

// Backoff parameters for whole-sync retries. The engine itself never sleeps
// between runs; the scheduler uses RetryDelay to space them.
const (
	backoffBase       = 1 * time.Second
	backoffMultiplier = 2
	backoffMax        = 30 * time.Second
)

// RetryDelay returns the exponential backoff delay for the given retry
// count: min(base * multiplier^retryCount, max).
func RetryDelay(retryCount int) time.Duration {
	delay := backoffBase
	for i := 0; i < retryCount; i++ {
		delay *= backoffMultiplier
		if delay >= backoffMax {
			return backoffMax
		}
	}
	return delay
}
