// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package analysis provides the HTTP client for the external analysis
// service. The service produces the structured result; this pipeline
// only transports and applies it.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/displayintel/pipeline/internal/models"
)

// analyzeRequest is the payload sent per email. Only content the
// analysis needs crosses the wire — never storage identifiers other than
// our email id for correlation.
type analyzeRequest struct {
	EmailID     int64    `json:"email_id"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	FromName    string   `json:"from_name,omitempty"`
	SenderEmail string   `json:"sender_email"`
	Recipients  []string `json:"recipient_emails,omitempty"`
	CC          []string `json:"cc_emails,omitempty"`
	SentAt      string   `json:"sent_at,omitempty"`
}

// Client calls the analysis service. The http.Client is expected to
// carry credentials (OAuth2 client-credentials transport, built in main).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an analysis client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL}
}

// Analyze submits one email and returns its structured result. A 404 or
// 204 means the service declined the email (nil result, nil error); any
// other non-200 is an error the caller may retry.
func (c *Client) Analyze(ctx context.Context, email *models.Email) (*models.AnalysisResult, error) {
	payload := analyzeRequest{
		EmailID:     email.ID,
		Subject:     email.Subject,
		Body:        email.Body,
		FromName:    email.FromName,
		SenderEmail: email.SenderEmail,
		Recipients:  email.RecipientEmails,
		CC:          email.CCEmails,
	}
	if email.SentAt != nil {
		payload.SentAt = email.SentAt.UTC().Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	url := c.baseURL + "/v1/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analysis service: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		slog.Warn("analysis service declined email",
			"email_id", email.ID,
			"status", resp.StatusCode,
		)
		return nil, nil
	default:
		data, _ := io.ReadAll(resp.Body)
		slog.Error("analysis service error",
			"email_id", email.ID,
			"status", resp.StatusCode,
			"body", string(data),
		)
		return nil, fmt.Errorf("analysis service returned HTTP %d", resp.StatusCode)
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	return &result, nil
}
