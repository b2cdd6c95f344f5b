package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPVerifier calls a verification service over HTTP. The transport-level
// timeout is a hard upper bound; the pipeline passes a per-call deadline
// through ctx as well.
type HTTPVerifier struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPVerifier creates a verifier client for the given endpoint.
func NewHTTPVerifier(url, token string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type checkRequest struct {
	Payload string `json:"payload"`
}

// Check submits the payload for verification and decodes the verdict.
func (v *HTTPVerifier) Check(ctx context.Context, payload []byte) (*Result, error) {
	body, err := json.Marshal(checkRequest{Payload: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return nil, fmt.Errorf("marshal check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.token != "" {
		req.Header.Set("Authorization", "Bearer "+v.token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verification call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("verification service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode verification response: %w", err)
	}
	return &result, nil
}
