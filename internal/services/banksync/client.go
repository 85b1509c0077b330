package banksync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 16 << 20

// errorEnvelope is embedded in every bridge response. Bridges report
// provider failures in-band, sometimes with a 200 status.
type errorEnvelope struct {
	ErrorType string `json:"error_type"`
	ErrorCode string `json:"error_code"`
	Reason    string `json:"reason"`
}

func (e errorEnvelope) syncError() error {
	if e.ErrorCode == "" {
		return nil
	}
	return &SyncError{Category: e.ErrorType, Code: e.ErrorCode, Reason: e.Reason}
}

type syncErrorer interface {
	syncError() error
}

// client posts JSON to a bank-sync bridge.
type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) post(ctx context.Context, path string, body interface{}, out syncErrorer) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &InternalError{Op: "encode request", Err: err}
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &InternalError{Op: "build request", Err: err, Details: map[string]interface{}{"url": url}}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Ledger-Token", c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &SyncError{Category: "TIMED_OUT", Code: "TIMED_OUT", Reason: err.Error()}
		}
		return &InternalError{Op: "post", Err: err, Details: map[string]interface{}{"url": url}}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &InternalError{Op: "read response", Err: err, Details: map[string]interface{}{"url": url}}
	}

	decodeErr := json.Unmarshal(data, out)
	if decodeErr == nil {
		if serr := out.syncError(); serr != nil {
			return serr
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &InternalError{
			Op:  "post",
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
			Details: map[string]interface{}{
				"url":    url,
				"status": resp.StatusCode,
				"body":   truncate(string(data), 512),
			},
		}
	}
	if decodeErr != nil {
		return &InternalError{Op: "decode response", Err: decodeErr, Details: map[string]interface{}{"url": url}}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
