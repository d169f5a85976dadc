package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mosaicnetworks/ballotguard/src/vote"
)

// StatusError is returned when the ledger node answers with a non 2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsRetryable reports whether a ledger error may go away on its own.
// Requests the node rejected as malformed will not.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusRequestTimeout || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// HTTPClient implements Adapter against a ledger node over HTTP.
type HTTPClient struct {
	addr   string
	client *http.Client
}

// NewHTTPClient creates a client for the node at addr, eg.
// http://127.0.0.1:8800. Every call is bounded by timeout.
func NewHTTPClient(addr string, timeout time.Duration) *HTTPClient {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return &HTTPClient{
		addr:   strings.TrimRight(addr, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

// SubmitTransaction implements Adapter.
func (c *HTTPClient) SubmitTransaction(ctx context.Context, tx vote.Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, "/new_transaction", body)
	return err
}

// FinalizeBlock implements Adapter.
func (c *HTTPClient) FinalizeBlock(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/mine", nil)
	return err
}

// FetchChain implements Adapter.
func (c *HTTPClient) FetchChain(ctx context.Context) ([]vote.Block, error) {
	data, err := c.do(ctx, http.MethodGet, "/chain", nil)
	if err != nil {
		return nil, err
	}

	var resp ChainResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding chain: %w", err)
	}
	return resp.Chain, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
