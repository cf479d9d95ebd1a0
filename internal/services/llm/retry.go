package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// completeWithRetry sends payload until a non-empty completion arrives, a
// permanent error occurs, or the attempt budget runs out.
func (c *Client) completeWithRetry(ctx context.Context, payload chatCompletionRequest, op string) (Completion, error) {
	attempts := c.retryAttempts()
	policy := &retryPolicy{delegate: c.newBackOff(), max: c.maxDelay()}

	attempt := 0
	exhausted := false
	operation := func() (Completion, error) {
		attempt++
		response, body, err := c.send(ctx, payload)
		if err == nil {
			completion := extractCompletion(response)
			if completion.Content != "" {
				return completion, nil
			}
			err = &EmptyContentError{
				Op:           op,
				FinishReason: completion.FinishReason,
				Refusal:      extractRefusal(response),
				Snippet:      summarizePayloadSnippet(string(body)),
			}
		}
		if !retryable(ctx, err) {
			return Completion{}, backoff.Permanent(err)
		}
		policy.hint = retryAfterHint(err)
		exhausted = attempt >= attempts
		return Completion{}, err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
	completion, err := backoff.RetryNotifyWithTimerAndData(operation, bo, nil, c.timer())
	if err != nil && exhausted && attempts > 1 {
		return Completion{}, fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, err)
	}
	return completion, err
}

func (c *Client) retryAttempts() int {
	if c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) maxDelay() time.Duration {
	if c.retryMaxDelay > 0 {
		return c.retryMaxDelay
	}
	return defaultRetryMaxDelay
}

// newBackOff doubles from the base delay per retry and caps at the max delay.
func (c *Client) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryBaseDelay
	bo.MaxInterval = c.maxDelay()
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (c *Client) timer() backoff.Timer {
	if c.sleeper == nil {
		return nil
	}
	return &sleeperTimer{sleep: c.sleeper, ch: make(chan time.Time, 1)}
}

func retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var emptyErr *EmptyContentError
	if errors.As(err, &emptyErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retryAfterHint(err error) time.Duration {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.RetryAfter
	}
	return 0
}

// retryPolicy lets a server-provided Retry-After replace the next computed
// delay, capped at max.
type retryPolicy struct {
	delegate backoff.BackOff
	max      time.Duration
	hint     time.Duration
}

func (p *retryPolicy) NextBackOff() time.Duration {
	next := p.delegate.NextBackOff()
	if next == backoff.Stop || p.hint <= 0 {
		return next
	}
	next = min(p.hint, p.max)
	p.hint = 0
	return next
}

func (p *retryPolicy) Reset() {
	p.delegate.Reset()
	p.hint = 0
}

// sleeperTimer adapts an injected sleep function to backoff.Timer.
type sleeperTimer struct {
	sleep func(time.Duration)
	ch    chan time.Time
}

func (t *sleeperTimer) Start(d time.Duration) {
	t.sleep(d)
	t.ch <- time.Now()
}

func (t *sleeperTimer) Stop() {}

func (t *sleeperTimer) C() <-chan time.Time { return t.ch }

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
