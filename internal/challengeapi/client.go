// Package challengeapi is the client for the challenge service's receipt
// recognition and budget ledger endpoints.
package challengeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/uubinn0/Challengobi-sub000/internal/auth"
	"github.com/uubinn0/Challengobi-sub000/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	userAgent      = "gobi/1.0"
)

var (
	// ErrUnauthorized indicates the server rejected the access token.
	ErrUnauthorized = fmt.Errorf("challengeapi: unauthorized: %w", auth.ErrRejected)
	// ErrRateLimited indicates the API rate limit was hit.
	ErrRateLimited = errors.New("challengeapi: rate limited")
	// ErrMalformedLedger indicates a ledger response without a remaining balance.
	ErrMalformedLedger = errors.New("challengeapi: ledger response missing remaining balance")
)

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("challengeapi: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("challengeapi: unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to one challenge service deployment.
type Client struct {
	baseURL string
	creds   auth.Provider
	timeout time.Duration
	http    *http.Client
}

// NewClient returns a client for baseURL (for example
// "http://localhost:8001"). A non-positive timeout uses 30s.
func NewClient(baseURL string, creds auth.Provider, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		timeout: timeout,
		http:    &http.Client{},
	}
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AnalyzeReceipt uploads a receipt photo as the multipart field "image"
// and returns the raw recognition envelope.
func (c *Client) AnalyzeReceipt(ctx context.Context, challengeID, fileName, contentType string, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("challengeapi: building upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("challengeapi: building upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("challengeapi: building upload: %w", err)
	}

	return c.do(ctx, http.MethodPost, challengePath(challengeID, "expenses/ocr/"), &buf, w.FormDataContentType(), nil)
}

// FetchLedger reads the authoritative budget totals for a challenge.
func (c *Client) FetchLedger(ctx context.Context, challengeID string) (model.LedgerTotals, error) {
	body, err := c.do(ctx, http.MethodGet, challengePath(challengeID, "ledger/"), nil, "", nil)
	if err != nil {
		return model.LedgerTotals{}, err
	}
	totals, ok := parseLedger(body)
	if !ok {
		return model.LedgerTotals{}, ErrMalformedLedger
	}
	return totals, nil
}

// Commit submits a verification. The commit's idempotency key is sent so
// a retried request is not booked twice. The updated totals are returned
// when the server includes them.
func (c *Client) Commit(ctx context.Context, commit model.Commit) (*model.LedgerTotals, error) {
	payload, err := json.Marshal(newCommitRequest(commit))
	if err != nil {
		return nil, fmt.Errorf("challengeapi: encoding commit: %w", err)
	}

	headers := map[string]string{}
	if commit.IdempotencyKey != "" {
		headers["Idempotency-Key"] = commit.IdempotencyKey
	}
	body, err := c.do(ctx, http.MethodPost, challengePath(commit.ChallengeID, "expenses/verify/"), bytes.NewReader(payload), "application/json", headers)
	if err != nil {
		return nil, err
	}
	if totals, ok := parseLedger(body); ok {
		return &totals, nil
	}
	return nil, nil
}

func challengePath(challengeID, suffix string) string {
	return "/api/challenges/" + url.PathEscape(challengeID) + "/" + suffix
}

// do performs an authenticated request and returns the response body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, headers map[string]string) ([]byte, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("challengeapi: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("challengeapi: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	//nolint:gosec // URL is built from the configured base URL
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("challengeapi: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("challengeapi: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet(data)}
	}
	return data, nil
}

// snippet trims an error body for inclusion in a message.
func snippet(b []byte) string {
	r := []rune(strings.TrimSpace(string(b)))
	if len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return string(r)
}
