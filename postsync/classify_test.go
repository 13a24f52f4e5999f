// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package postsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		message string
		want    ErrorClass
	}{
		{"Validation failed: title too long", ClassPermanent},
		{"server returned status 400: bad request", ClassPermanent},
		{"401 Unauthorized", ClassPermanent},
		{"403 Forbidden", ClassPermanent},
		{"404 not found", ClassPermanent},
		{"linkUrl is required", ClassPermanent},
		{"invalid content type", ClassPermanent},

		{"network request failed", ClassTransient},
		{"request timeout exceeded", ClassTransient},
		{"dial tcp: connection refused", ClassTransient},
		{"ECONNREFUSED", ClassTransient},
		{"lookup api.example.com: no such host", ClassTransient},
		{"fetch failed", ClassTransient},
		{"server returned status 503: unavailable", ClassTransient},
		{"Internal Server Error", ClassTransient},
		{"batch endpoint temporarily unavailable: circuit breaker is open", ClassTransient},

		{"something odd happened", ClassUnknown},
		{"", ClassUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyError(tc.message), "message: %q", tc.message)
	}
}

func TestClassifyError_PermanentCheckedFirst(t *testing.T) {
	// An error matching both lists is permanent; the ordering is contractual.
	require.Equal(t, ClassPermanent, ClassifyError("400 network error"))
	require.Equal(t, ClassPermanent, ClassifyError("validation timeout"))
}

func TestRetryDelay(t *testing.T) {
	require.Equal(t, 1*time.Second, RetryDelay(0))
	require.Equal(t, 2*time.Second, RetryDelay(1))
	require.Equal(t, 4*time.Second, RetryDelay(2))
	require.Equal(t, 8*time.Second, RetryDelay(3))
	require.Equal(t, 30*time.Second, RetryDelay(5), "capped")
	require.Equal(t, 30*time.Second, RetryDelay(10), "capped")
}
