// Package httpjson sends JSON requests to model providers and classifies
// failures into docrag error codes.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Aman-CERP/docrag/internal/errors"
)

// maxErrorBody bounds how much of a failed response is read into the error.
const maxErrorBody = 4 << 10

// NewClient returns an HTTP client with pooled connections and no global
// timeout. Callers bound each request with its context.
func NewClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     10 * time.Second,
		},
	}
}

// Post marshals in, POSTs it to url and decodes a 2xx response into out.
// Non-2xx statuses become errors.FromStatus errors; transport failures
// become errors.FromTransport errors; undecodable bodies are rejections.
func Post(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.InternalError("marshal "+provider+" request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("invalid %s endpoint %q", provider, url), err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.FromTransport(ctx, provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.FromStatus(provider, resp.StatusCode, string(msg), resp.Header.Get("Retry-After"))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return errors.FromTransport(ctx, provider, err)
		}
		return errors.New(errors.ErrCodeProviderRejected, "decode "+provider+" response", err)
	}
	return nil
}
