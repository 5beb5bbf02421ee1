package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		attempt     int
		minExpected time.Duration
		maxExpected time.Duration
	}{
		{0, 100 * time.Millisecond, 125 * time.Millisecond},  // 100ms + 0-25% jitter
		{1, 200 * time.Millisecond, 250 * time.Millisecond},  // 200ms + 0-25% jitter
		{2, 400 * time.Millisecond, 500 * time.Millisecond},  // 400ms + 0-25% jitter
		{3, 800 * time.Millisecond, 1000 * time.Millisecond}, // 800ms + 0-25% jitter
	}

	for _, tt := range tests {
		backoff := calculateBackoff(base, tt.attempt)
		if backoff < tt.minExpected || backoff > tt.maxExpected {
			t.Errorf("attempt %d: got %v, want between %v and %v", tt.attempt, backoff, tt.minExpected, tt.maxExpected)
		}
	}
}

func TestCalculateBackoffCapped(t *testing.T) {
	backoff := calculateBackoff(time.Minute, 20)
	if backoff > maxBackoff+maxBackoff/4 {
		t.Errorf("backoff %v exceeds cap with jitter", backoff)
	}
}

func TestDoRetryThenSuccess(t *testing.T) {
	opts := Options{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Classifier:  func(err error) ErrorType { return Retryable },
	}

	calls := 0
	err := Do(context.Background(), opts, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	opts := Options{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Classifier:  func(err error) ErrorType { return Retryable },
	}

	calls := 0
	err := Do(context.Background(), opts, func() error {
		calls++
		return errors.New("never works")
	})

	if err == nil {
		t.Error("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	opts := Options{
		MaxAttempts: 5,
		BackoffBase: time.Millisecond,
		Classifier:  func(err error) ErrorType { return Permanent },
	}

	calls := 0
	err := Do(context.Background(), opts, func() error {
		calls++
		return errors.New("bad request")
	})

	if err == nil {
		t.Error("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call for permanent error, got %d", calls)
	}
}

func TestDoWithResultReturnsValue(t *testing.T) {
	opts := Options{
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
		Classifier:  func(err error) ErrorType { return Retryable },
	}

	calls := 0
	got, err := DoWithResult(context.Background(), opts, func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "value", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if got != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	opts := Options{
		MaxAttempts: 10,
		BackoffBase: time.Hour, // would block forever without cancellation
		Classifier:  func(err error) ErrorType { return Retryable },
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, opts, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestClassifyAssistant(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"rate limit", errors.New("API rate limit exceeded"), RateLimited},
		{"429", errors.New("status 429"), RateLimited},
		{"timeout", errors.New("claude timed out after 30m0s"), Retryable},
		{"network", errors.New("connection reset by peer"), Retryable},
		{"permanent", errors.New("invalid prompt"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyAssistant(tt.err); got != tt.want {
				t.Errorf("ClassifyAssistant(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyGit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"dns", errors.New("fatal: could not resolve host: github.com"), Retryable},
		{"reset", errors.New("connection reset by peer"), Retryable},
		{"rejected", errors.New("! [rejected] non-fast-forward"), Permanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyGit(tt.err); got != tt.want {
				t.Errorf("ClassifyGit(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
