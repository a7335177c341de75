package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const maxErrorBody = 512

// Client is a JSON HTTP client with rate limiting and retries
type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	opts       ClientOptions
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetryTimeout time.Duration
	InitialInterval time.Duration
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 30 * time.Second
	}
	if opts.InitialInterval == 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: opts.Timeout},
		Limiter:    rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		opts:       opts,
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// ClassifyStatus maps an HTTP status code onto the error taxonomy.
func ClassifyStatus(code int) models.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return models.KindAuth
	case code == http.StatusTooManyRequests:
		return models.KindRateLimited
	default:
		return models.KindNetwork
	}
}

// PostJSON marshals body, POSTs it to url and decodes the 2xx response into
// out. Transport errors, 429 and 5xx are retried with exponential backoff
// until MaxRetryTimeout; other 4xx fail immediately. The returned error is a
// classified *models.Error.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.NewError(models.KindValidation, "marshal request", err)
	}

	var respBody []byte
	operation := func() error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(data))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		respBody = data
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = c.opts.InitialInterval
	strategy.MaxElapsedTime = c.opts.MaxRetryTimeout

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return classify(err)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return models.NewError(models.KindMalformedResponse, "decode response", err)
	}
	return nil
}

func classify(err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return models.NewError(ClassifyStatus(statusErr.StatusCode), "request rejected", statusErr)
	}
	return models.NewError(models.KindNetwork, "request failed", err)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
