package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryer_Success(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls, "应该只调用一次")
}

func TestRetryer_RetryAndSuccess(t *testing.T) {
	r := New(fastPolicy(3), zap.NewNop())

	var attempts []int
	err := r.Do(context.Background(), func(attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return errors.New("dial refused")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestRetryer_MaxRetriesExceeded(t *testing.T) {
	r := New(fastPolicy(2), zap.NewNop())
	testErr := errors.New("persistent")

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		return testErr
	})

	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, calls, "初次调用加两次重试")
}

func TestRetryer_Unlimited(t *testing.T) {
	r := New(fastPolicy(Unlimited), nil)

	calls := 0
	err := r.Do(context.Background(), func(int) error {
		calls++
		if calls < 6 {
			return errors.New("again")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 6, calls)
}

func TestRetryer_NonRetryable(t *testing.T) {
	retryable := errors.New("retryable")
	p := fastPolicy(5)
	p.RetryableErrors = []error{retryable}
	r := New(p, zap.NewNop())

	calls := 0
	fatal := errors.New("fatal")
	err := r.Do(context.Background(), func(int) error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestRetryer_ContextCancelled(t *testing.T) {
	p := fastPolicy(Unlimited)
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second
	r := New(p, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := r.Do(ctx, func(int) error { return errors.New("down") })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryer_Delay(t *testing.T) {
	r := New(&Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}, nil)

	assert.Equal(t, time.Duration(0), r.Delay(0))
	assert.Equal(t, 100*time.Millisecond, r.Delay(1))
	assert.Equal(t, 200*time.Millisecond, r.Delay(2))
	assert.Equal(t, 400*time.Millisecond, r.Delay(3))
	assert.Equal(t, time.Second, r.Delay(10))
}

func TestRetryer_DelayJitterBounds(t *testing.T) {
	r := New(&Policy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, Jitter: true}, nil)

	for i := 0; i < 50; i++ {
		d := r.Delay(3)
		assert.GreaterOrEqual(t, d, 300*time.Millisecond)
		assert.LessOrEqual(t, d, 500*time.Millisecond)
	}
}

func TestNew_NormalizesPolicy(t *testing.T) {
	r := New(&Policy{MaxRetries: -5, Multiplier: 0.5}, nil)
	p := r.Policy()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 30*time.Second, p.MaxDelay)
	assert.Equal(t, 2.0, p.Multiplier)
}
