// Package partners holds the REST clients for the downstream financial
// APIs: the transaction ledger, the custody vault, and the payout engine.
// Each client is a thin typed proxy over a shared agent; authorization and
// MFA decisions happen before a request ever reaches this package.
package partners

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"azkaban/internal/apierr"
	"azkaban/internal/secrets"
)

const (
	requestTimeout = 30 * time.Second
	// maxRetries bounds GET retries on transient upstream failures.
	maxRetries   = 3
	retryBackoff = 300 * time.Millisecond
	// maxResponseBytes caps how much of an upstream body is read.
	maxResponseBytes = 4 << 20

	headerAPIKey = "x-api-key"
)

// UpstreamError reports a failed partner call with enough detail to debug
// without exposing credentials. Status 0 means the partner was unreachable.
type UpstreamError struct {
	Partner string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("partner %s unreachable: %s", e.Partner, e.Body)
	}
	return fmt.Sprintf("partner %s returned %d: %s", e.Partner, e.Status, e.Body)
}

// agent is the shared HTTP plumbing for one partner API. It attaches the
// api-key header, applies the fixed request timeout, and retries transient
// failures for GET requests only, since GETs are the only calls safe to
// repeat.
type agent struct {
	partner string
	baseURL string
	apiKey  string
	client  *http.Client
}

// newAgent resolves the partner's base URL and api key through the secret
// resolver. Missing credentials are a configuration error, not an upstream
// one.
func newAgent(ctx context.Context, resolver secrets.Resolver, partner, urlName, keyName string) (*agent, error) {
	baseURL, errURL := resolver.Get(ctx, urlName)
	if errURL != nil {
		return nil, fmt.Errorf("partners: resolve %s: %w", urlName, errURL)
	}
	apiKey, errKey := resolver.Get(ctx, keyName)
	if errKey != nil {
		return nil, fmt.Errorf("partners: resolve %s: %w", keyName, errKey)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	if baseURL == "" || apiKey == "" {
		return nil, apierr.New(apierr.KindConfiguration, fmt.Sprintf("missing credentials for %s api", partner))
	}
	log.Infof("partners: %s client initialized with host %s", partner, baseURL)
	return &agent{
		partner: partner,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: requestTimeout},
	}, nil
}

// get performs a GET with retries on 500/502/504 and network errors.
func (a *agent) get(ctx context.Context, path string, query url.Values, out any) error {
	backoff := retry.WithMaxRetries(maxRetries, retry.NewConstant(retryBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := a.do(ctx, http.MethodGet, path, query, nil, nil, out)
		if upstream, ok := err.(*UpstreamError); ok && retryableStatus(upstream.Status) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// post performs a POST. Mutations are never retried.
func (a *agent) post(ctx context.Context, path string, body, out any, extra http.Header) error {
	return a.do(ctx, http.MethodPost, path, nil, body, extra, out)
}

// put performs a PUT. Mutations are never retried.
func (a *agent) put(ctx context.Context, path string, body, out any) error {
	return a.do(ctx, http.MethodPut, path, nil, body, nil, out)
}

// delete performs a DELETE. Mutations are never retried.
func (a *agent) delete(ctx context.Context, path string) error {
	return a.do(ctx, http.MethodDelete, path, nil, nil, nil, nil)
}

func (a *agent) do(ctx context.Context, method, path string, query url.Values, body any, extra http.Header, out any) error {
	var reader io.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			return fmt.Errorf("partners: encode %s request: %w", a.partner, errMarshal)
		}
		reader = bytes.NewReader(payload)
	}

	req, errReq := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if errReq != nil {
		return fmt.Errorf("partners: build %s request: %w", a.partner, errReq)
	}
	req.Header.Set(headerAPIKey, a.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, values := range extra {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, errDo := a.client.Do(req)
	if errDo != nil {
		log.WithError(errDo).Warnf("partners: %s %s %s failed", a.partner, method, path)
		return &UpstreamError{Partner: a.partner, Body: errDo.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	data, errRead := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if errRead != nil {
		return &UpstreamError{Partner: a.partner, Status: resp.StatusCode, Body: errRead.Error()}
	}
	log.Debugf("partners: %s %s %s -> %d", a.partner, method, path, resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return &UpstreamError{Partner: a.partner, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	if errDecode := json.Unmarshal(data, out); errDecode != nil {
		return fmt.Errorf("partners: decode %s response: %w", a.partner, errDecode)
	}
	return nil
}

// retryableStatus covers transient failures: unreachable (0), 500, 502, 504.
func retryableStatus(status int) bool {
	switch status {
	case 0, http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return true
	}
	return false
}
