package rabbitmq

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy decides whether a failed operation is retried and how long
// to wait before the next attempt.
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt should be made after
	// the given number of completed attempts, and the delay before it.
	ShouldRetry(attempts int) (bool, time.Duration)

	// NextDelay calculates the delay before the given attempt.
	NextDelay(attempts int) time.Duration
}

// FixedDelay retries at a constant interval. MaxAttempts < 0 means retry
// forever; this is the gateway's default policy.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed delay policy.
func NewFixedDelay(delay time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{
		Delay:       delay,
		MaxAttempts: maxAttempts,
	}
}

// ShouldRetry implements RetryPolicy.
func (f *FixedDelay) ShouldRetry(attempts int) (bool, time.Duration) {
	if f.MaxAttempts >= 0 && attempts >= f.MaxAttempts {
		return false, 0
	}
	return true, f.NextDelay(attempts)
}

// NextDelay implements RetryPolicy.
func (f *FixedDelay) NextDelay(attempts int) time.Duration {
	return f.Delay
}

// ExponentialBackoff retries with exponentially growing, jittered delays
// capped at MaxInterval. Opt-in alternative to FixedDelay for deployments
// that need to avoid retry storms during long outages.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy.
// maxAttempts < 0 means retry forever.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy.
func (e *ExponentialBackoff) ShouldRetry(attempts int) (bool, time.Duration) {
	if e.MaxAttempts >= 0 && attempts >= e.MaxAttempts {
		return false, 0
	}
	return true, e.NextDelay(attempts)
}

// NextDelay implements RetryPolicy.
func (e *ExponentialBackoff) NextDelay(attempts int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempts))

	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}

	if e.Jitter {
		jitter := rand.Float64() * 0.3 * delay // ±15% jitter
		delay = delay + jitter - (0.15 * delay)
	}

	return time.Duration(delay)
}

// RetryTask is a scheduled re-attempt of a failed operation. It carries the
// operation name for logging, the number of attempts already made, and the
// closure to re-run. Tasks are values handed to a RetryScheduler, so tests
// can observe scheduled-but-unfired work instead of racing wall-clock
// timers.
type RetryTask struct {
	Op       string
	Attempts int
	Run      func(ctx context.Context) error
}

// RetryScheduler schedules retry tasks for later execution.
type RetryScheduler interface {
	Schedule(task *RetryTask)
}

// TimerScheduler fires retry tasks on wall-clock timers under a RetryPolicy.
// A task that fails when fired is rescheduled with its attempt count
// incremented, until the policy gives up (never, for the default policy).
type TimerScheduler struct {
	policy RetryPolicy
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// TimerSchedulerOption configures the TimerScheduler.
type TimerSchedulerOption func(*TimerScheduler)

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *slog.Logger) TimerSchedulerOption {
	return func(s *TimerScheduler) {
		s.logger = logger
	}
}

// NewTimerScheduler creates a scheduler with the given policy.
func NewTimerScheduler(policy RetryPolicy, options ...TimerSchedulerOption) *TimerScheduler {
	s := &TimerScheduler{
		policy: policy,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Schedule implements RetryScheduler.
func (s *TimerScheduler) Schedule(task *RetryTask) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ok, delay := s.policy.ShouldRetry(task.Attempts)
	if !ok {
		s.logger.Error("giving up on retry task",
			"op", task.Op,
			"attempts", task.Attempts)
		return
	}

	s.logger.Info("scheduling retry",
		"op", task.Op,
		"attempt", task.Attempts+1,
		"delay", delay)

	time.AfterFunc(delay, func() {
		select {
		case <-s.done:
			return
		default:
		}

		if err := task.Run(context.Background()); err != nil {
			task.Attempts++
			s.Schedule(task)
		}
	})
}

// Close stops the scheduler; pending tasks are dropped when they fire.
func (s *TimerScheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}
