package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxResponseBody = 1 << 20

// Error is the normalized failure of any outbound provider call.
type Error struct {
	Service string
	Op      string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Service, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// jsonClient sends JSON requests to one provider and decodes JSON replies.
type jsonClient struct {
	service string
	baseURL string
	headers map[string]string
	client  *http.Client
}

func newJSONClient(service, baseURL string, headers map[string]string, timeout time.Duration) *jsonClient {
	return &jsonClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

// do sends body (if non-nil) and decodes the response into out (if non-nil).
// path may be empty when baseURL is already the full endpoint.
func (c *jsonClient) do(ctx context.Context, op, method, path string, body, out any) error {
	fail := func(status int, err error) error {
		return &Error{Service: c.service, Op: op, Status: status, Err: err}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fail(0, fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fail(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("service", c.service).
			Str("op", op).
			Dur("elapsed", elapsed).
			Msg("gateway request error")
		return fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("service", c.service).
			Str("op", op).
			Int("status", resp.StatusCode).
			Dur("elapsed", elapsed).
			Msg("gateway request failed")
		return fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(raw)))
	}

	log.Debug().
		Str("service", c.service).
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("gateway request successful")

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
