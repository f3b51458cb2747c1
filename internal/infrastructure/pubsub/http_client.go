package pubsub

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseSize bounds the part of a webhook response kept for error
// reporting.
const maxResponseSize = 1024

type client struct {
	http    *http.Client
	timeout time.Duration
}

func newHTTPClient(requestTimeout time.Duration) *client {
	return &client{http: &http.Client{}, timeout: requestTimeout}
}

// post delivers the payload to the endpoint and returns the response status
// along with the beginning of its body.
func (c *client) post(
	ctx context.Context, endpoint, payload string, headers map[string]string,
) (int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, strings.NewReader(payload),
	)
	if err != nil {
		return 0, "", err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, "", err
	}
	// Drain so that the connection can be reused.
	//nolint
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}
