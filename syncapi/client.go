// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds connection settings for the remote API.
type Config struct {
	BaseURL        string
	BatchPath      string        // POST, default /api/posts/batch
	HealthPath     string        // HEAD, default /api/health
	RequestTimeout time.Duration // per batch request
	PingTimeout    time.Duration // liveness probe
}

// DefaultConfig returns production defaults for the given base URL.
func DefaultConfig(baseURL string) *Config {
	return &Config{
		BaseURL:        baseURL,
		BatchPath:      "/api/posts/batch",
		HealthPath:     "/api/health",
		RequestTimeout: 30 * time.Second,
		PingTimeout:    5 * time.Second,
	}
}

// Client talks to the posts batch endpoint. All outbound calls run through a
// circuit breaker so a struggling backend is not hammered by retries; a
// tripped breaker surfaces as a transient error the sync engine will requeue
// on.
type Client struct {
	Token TokenFunc
	HTTP  *http.Client

	cfg     *Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewClient creates an API client. Token may be nil for unauthenticated
// endpoints; logger may be nil.
func NewClient(cfg *Config, token TokenFunc, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		Token:  token,
		HTTP:   &http.Client{},
		cfg:    cfg,
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "posts-batch-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// SendBatch POSTs the given posts to the batch endpoint and returns the
// decoded response. A non-2xx reply is an error carrying the status code and
// body so the caller's classifier can see them.
func (c *Client) SendBatch(ctx context.Context, items []BatchItem) (*BatchResponse, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doSendBatch(ctx, items)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("batch endpoint temporarily unavailable: %w", err)
		}
		return nil, err
	}
	return out.(*BatchResponse), nil
}

func (c *Client) doSendBatch(ctx context.Context, items []BatchItem) (*BatchResponse, error) {
	body, err := json.Marshal(&BatchRequest{Posts: items})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+c.cfg.BatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send batch request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var batchResp BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&batchResp); err != nil {
		return nil, fmt.Errorf("failed to decode batch response: %w", err)
	}
	return &batchResp, nil
}

// Ping issues a lightweight HEAD request against the health endpoint. Any
// HTTP response, error statuses included, proves the server is reachable;
// only transport failures and timeouts count as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.PingTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL+c.cfg.HealthPath, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create ping request: %w", err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("health endpoint unreachable: %w", err)
		}
		resp.Body.Close()
		return nil, nil
	})
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		return fmt.Errorf("health endpoint temporarily unavailable: %w", err)
	}
	return err
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.Token == nil {
		return nil
	}
	token, err := c.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
