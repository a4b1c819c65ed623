package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPClient is the subset of *http.Client used by the fetcher
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds transport and resilience settings
type Config struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	Multiplier       float64
	BreakerThreshold uint32 // consecutive failed requests before the breaker opens
	BreakerTimeout   time.Duration
}

// errStatus is returned for a non-2xx answer
type errStatus struct {
	code int
}

func (e *errStatus) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

// retryable reports whether another attempt may succeed.
// Client errors are final except rate limiting.
func retryable(err error) bool {
	var se *errStatus
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

type transport struct {
	client     HTTPClient
	logger     *zap.Logger
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
	multiplier float64
}

func newTransport(name string, cfg Config, client HTTPClient, logger *zap.Logger) *transport {
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &transport{
		client:     client,
		logger:     logger,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		multiplier: multiplier,
	}
}

// get performs a GET with exponential backoff. Every attempt goes through the
// circuit breaker; an open breaker ends the retries.
func (t *transport) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(t.retryDelay) * math.Pow(t.multiplier, float64(attempt-1)))
			t.logger.Debug("Retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		body, err := t.breaker.Execute(func() (interface{}, error) {
			return t.do(ctx, url)
		})
		if err == nil {
			return body.([]byte), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker %s: %w", t.breaker.Name(), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		t.logger.Warn("HTTP request failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if !retryable(err) {
			break
		}
	}

	return nil, fmt.Errorf("max retries exceeded, last error: %w", lastErr)
}

func (t *transport) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request failed: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &errStatus{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body failed: %w", err)
	}

	t.logger.Debug("Request successful",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("body_size", len(body)))
	return body, nil
}
