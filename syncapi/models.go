// Copyright 2025 Vinay Kumar
// SPDX-License-Identifier: Apache-2.0

// Package syncapi holds the wire models and HTTP client for the remote
// posts batch endpoint. The server is consumed as a black box; this package
// owns only the contract the sync engine depends on.
package syncapi

// BatchItem is one post in a batch upload request.
type BatchItem struct {
	QueueID     string `json:"queueId"`
	ContentType string `json:"contentType"`
	Title       string `json:"title,omitempty"`
	TextContent string `json:"textContent,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
}

// BatchRequest is the body of POST /api/posts/batch.
type BatchRequest struct {
	Posts []BatchItem `json:"posts"`
}

// BatchResponse is the server's reply to a batch upload.
type BatchResponse struct {
	Success bool       `json:"success"`
	Data    *BatchData `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// BatchData carries the per-item results of an accepted batch.
type BatchData struct {
	Results []ItemResult `json:"results"`
}

// ItemResult is the server's verdict on a single post, keyed by queue ID.
type ItemResult struct {
	QueueID string `json:"queueId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ResultsByID indexes a response's per-item results by queue ID. Items the
// server silently dropped are simply absent from the map.
func (r *BatchResponse) ResultsByID() map[string]ItemResult {
	results := make(map[string]ItemResult)
	if r.Data == nil {
		return results
	}
	for _, res := range r.Data.Results {
		results[res.QueueID] = res
	}
	return results
}
