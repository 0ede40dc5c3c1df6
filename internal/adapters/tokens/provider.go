// Package tokens fetches the map engine access token.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrEmptyToken is returned when the token endpoint answers without a token.
var ErrEmptyToken = errors.New("empty map access token")

// Static always returns the configured token.
type Static string

// FetchMapAccessToken implements ports.TokenProvider.
func (s Static) FetchMapAccessToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrEmptyToken
	}
	return string(s), nil
}

// HTTPProvider fetches the token from a JSON endpoint answering
// {"token": "..."}.
type HTTPProvider struct {
	url     string
	client  *fasthttp.Client
	timeout time.Duration
}

// NewHTTPProvider creates a provider for url. timeout <= 0 means 10s.
func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		url:     url,
		timeout: timeout,
		client: &fasthttp.Client{
			Name:                "huntmap",
			MaxIdleConnDuration: 30 * time.Second,
		},
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// FetchMapAccessToken implements ports.TokenProvider.
func (p *HTTPProvider) FetchMapAccessToken(ctx context.Context) (string, error) {
	timeout := p.timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	if timeout <= 0 {
		return "", context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		return "", fmt.Errorf("GET %s: %w", p.url, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode(), p.url)
	}

	var body tokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return "", ErrEmptyToken
	}
	return body.Token, nil
}
