// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

package syncapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestClient_SendBatch(t *testing.T) {
	var gotAuth string
	var gotReq BatchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/posts/batch", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := BatchResponse{
			Success: true,
			Data: &BatchData{Results: []ItemResult{
				{QueueID: "queue_1_a", Success: true},
				{QueueID: "queue_2_b", Success: false, Error: "validation failed"},
			}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(server.URL), StaticToken("tok-123"), nil)
	resp, err := client.SendBatch(context.Background(), []BatchItem{
		{QueueID: "queue_1_a", ContentType: "note", TextContent: "hello"},
		{QueueID: "queue_2_b", ContentType: "link", LinkURL: "https://example.com"},
	})
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-123", gotAuth)
	require.Len(t, gotReq.Posts, 2)
	require.True(t, resp.Success)

	results := resp.ResultsByID()
	require.Len(t, results, 2)
	require.True(t, results["queue_1_a"].Success)
	require.Equal(t, "validation failed", results["queue_2_b"].Error)
}

func TestClient_SendBatchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(server.URL), nil, nil)
	_, err := client.SendBatch(context.Background(), []BatchItem{{QueueID: "q", ContentType: "note"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestClient_SendBatchTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // nothing listens anymore

	client := NewClient(DefaultConfig(server.URL), nil, nil)
	_, err := client.SendBatch(context.Background(), []BatchItem{{QueueID: "q", ContentType: "note"}})
	require.Error(t, err)
}

func TestClient_BreakerOpensAsTemporarilyUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(DefaultConfig(server.URL), nil, nil)
	ctx := context.Background()

	// Trip the breaker with consecutive transport failures.
	var err error
	for i := 0; i < 10; i++ {
		_, err = client.SendBatch(ctx, []BatchItem{{QueueID: "q", ContentType: "note"}})
		require.Error(t, err)
	}
	require.Contains(t, err.Error(), "temporarily unavailable")
}

func TestClient_PingAnyResponseIsReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(DefaultConfig(server.URL), nil, nil)
	require.NoError(t, client.Ping(context.Background()), "error status still proves reachability")
}

func TestClient_PingUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := NewClient(DefaultConfig(server.URL), nil, nil)
	require.Error(t, client.Ping(context.Background()))
}

func TestTokenSource_MintsParseableTokens(t *testing.T) {
	source := NewTokenSource("secret-key", "user-7", "device-abc", time.Hour)
	signed, err := source.Token(context.Background())
	require.NoError(t, err)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		require.IsType(t, &jwt.SigningMethodHMAC{}, token.Method)
		return []byte("secret-key"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	require.Equal(t, "user-7", claims.Subject)
	require.Equal(t, "device-abc", claims.DeviceID)
}
