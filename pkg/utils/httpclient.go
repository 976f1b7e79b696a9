package utils

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// NewRetryClient returns an HTTP client for provider APIs that retries connection errors,
// 429 and 5xx responses with exponential backoff. Retry logs go to logger; a nil logger silences them.
func NewRetryClient(timeout time.Duration, maxRetries int, logger *zap.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.CheckRetry = stopOnCancel(retryablehttp.DefaultRetryPolicy)
	if logger != nil {
		client.Logger = leveledLogger{logger.Sugar()}
	} else {
		client.Logger = nil
	}
	return client
}

// stopOnCancel wraps policy so that a cancelled request context is never retried.
func stopOnCancel(policy retryablehttp.CheckRetry) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return policy(ctx, resp, err)
	}
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}
