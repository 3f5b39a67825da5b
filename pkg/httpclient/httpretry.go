package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"marketplace/internal/application/common"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type RetryClient struct {
	delegate   HTTPClient
	maxRetries int
	// ShouldRetry decides whether the attempt outcome is worth another try.
	ShouldRetry func(*http.Response, error) bool
	// Backoff returns the pause before retry number attempt (1-based).
	Backoff func(attempt int) time.Duration
	logger  *zap.SugaredLogger
}

func NewRetryClient(delegate HTTPClient, maxRetries int, logger *zap.SugaredLogger) *RetryClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &RetryClient{
		delegate:    delegate,
		maxRetries:  maxRetries,
		ShouldRetry: DefaultShouldRetry,
		Backoff:     common.NextBackoffWithJitter,
		logger:      logger,
	}
}

// DefaultShouldRetry retries transport errors, 5xx and 429, but never an explicit cancel or deadline.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

func (c *RetryClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	// the body has to be replayable across attempts
	if req.Body != nil && req.GetBody == nil {
		buf, e := io.ReadAll(req.Body)
		if e != nil {
			return nil, e
		}
		_ = req.Body.Close()
		req.ContentLength = int64(len(buf))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
	}

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			rc, e := req.GetBody()
			if e != nil {
				return nil, e
			}
			r.Body = rc
		}

		resp, err = c.delegate.Do(ctx, r)

		if !c.ShouldRetry(resp, err) || attempt == c.maxRetries-1 {
			return resp, err
		}

		// hand the connection back to the pool before the next attempt
		if resp != nil && resp.Body != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		backoff := c.Backoff(attempt + 1)
		if backoff <= 0 {
			backoff = 100 * time.Millisecond
		}

		c.logger.Warnf("retry attempt=%d backoff=%s method=%s url=%s err=%v",
			attempt+1, backoff, req.Method, req.URL.String(), err)

		if err = common.SleepCtx(ctx, backoff); err != nil {
			return nil, fmt.Errorf("retry sleep canceled: %w", err)
		}
	}

	return resp, err
}
