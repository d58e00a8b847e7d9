package uploader

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// State of a logical upload.
type State string

const (
	StateIdle            State = "idle"
	StateUploading       State = "uploading"
	StateSucceeded       State = "succeeded"
	StateFailedRetryable State = "failed_retryable"
	StateFailedTerminal  State = "failed_terminal"
	StateCancelled       State = "cancelled"
)

// Reference retry policy.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 30 * time.Second
)

var (
	ErrAttemptInFlight = errors.New("an upload attempt is already in flight")
	ErrAlreadyStarted  = errors.New("upload already started; use Retry")
	ErrNotRetryable    = errors.New("upload is not in a failed state")
	ErrCancelled       = errors.New("upload cancelled")
)

// Progress is a snapshot of the transfer. Fraction never decreases over the
// life of a Coordinator, even when a retry starts sending from zero again.
type Progress struct {
	Attempt    int
	BytesSent  int64
	TotalBytes int64
	Fraction   float64
}

// Result is the outcome of one Start or Retry run.
type Result struct {
	State    State
	Attempts int
	Retries  int
	Err      error
}

// Config tunes retries. Zero values take the defaults.
type Config struct {
	// MaxRetries of zero means DefaultMaxRetries; negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// AttemptTimeout bounds one transport attempt; zero means no bound.
	AttemptTimeout time.Duration
	// Sleep waits between attempts and must return early when ctx is done.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Coordinator drives one logical upload to a single write URL. Attempts run
// sequentially on a background goroutine; at most one is ever in flight.
type Coordinator struct {
	transport   Transport
	source      Source
	url         string
	contentType string
	cfg         Config
	log         logrus.FieldLogger

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
	result    Result
	fraction  float64
}

// NewCoordinator prepares an idle upload of source to url.
func NewCoordinator(transport Transport, source Source, url, contentType string, cfg Config) (*Coordinator, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if source == nil {
		return nil, errors.New("source is required")
	}
	if url == "" {
		return nil, errors.New("upload url is required")
	}
	cfg = cfg.withDefaults()
	return &Coordinator{
		transport:   transport,
		source:      source,
		url:         url,
		contentType: contentType,
		cfg:         cfg,
		log:         cfg.Logger.WithField("component", "uploader"),
		state:       StateIdle,
	}, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins the first run. The returned channel is closed when the run ends.
func (c *Coordinator) Start(ctx context.Context) (<-chan Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateUploading:
		return nil, ErrAttemptInFlight
	case StateIdle:
		return c.launch(ctx), nil
	case StateCancelled:
		return nil, ErrCancelled
	default:
		return nil, ErrAlreadyStarted
	}
}

// Retry starts a new run after a failed one, with a fresh retry budget.
func (c *Coordinator) Retry(ctx context.Context) (<-chan Progress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateUploading:
		return nil, ErrAttemptInFlight
	case StateFailedRetryable, StateFailedTerminal:
		return c.launch(ctx), nil
	case StateCancelled:
		return nil, ErrCancelled
	default:
		return nil, ErrNotRetryable
	}
}

// Cancel aborts the current run. The run ends in StateCancelled no later
// than the next backoff boundary and reports no further progress.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateIdle:
		c.state = StateCancelled
		c.result = Result{State: StateCancelled, Err: ErrCancelled}
	case StateUploading:
		c.cancelled = true
		if c.cancel != nil {
			c.cancel()
		}
	}
}

// Wait blocks until the current run ends and returns its result.
func (c *Coordinator) Wait() Result {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle {
		return Result{State: StateIdle}
	}
	return c.result
}

// launch must be called with c.mu held.
func (c *Coordinator) launch(parent context.Context) <-chan Progress {
	ctx, cancel := context.WithCancel(parent)
	progress := make(chan Progress, 1)
	done := make(chan struct{})

	c.state = StateUploading
	c.cancel = cancel
	c.cancelled = false
	c.done = done
	c.result = Result{}

	go func() {
		defer close(done)
		defer cancel()
		res := c.run(ctx, progress)

		c.mu.Lock()
		if c.cancelled {
			res.State, res.Err = StateCancelled, ErrCancelled
		}
		c.state = res.State
		c.result = res
		c.cancel = nil
		close(progress)
		c.mu.Unlock()
	}()
	return progress
}

func (c *Coordinator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = c.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries))
}

func (c *Coordinator) run(ctx context.Context, progress chan Progress) Result {
	b := c.newBackOff()
	res := Result{}

	for {
		if c.isCancelled() || ctx.Err() != nil {
			res.State, res.Err = StateCancelled, ErrCancelled
			return res
		}

		res.Attempts++
		err := c.attempt(ctx, res.Attempts, progress)
		if err == nil {
			c.emit(progress, Progress{Attempt: res.Attempts, Fraction: 1}, nil)
			res.State, res.Err = StateSucceeded, nil
			return res
		}
		if c.isCancelled() || ctx.Err() != nil {
			res.State, res.Err = StateCancelled, ErrCancelled
			return res
		}

		res.Err = err
		if !IsRetryable(err) {
			c.log.WithError(err).WithField("attempt", res.Attempts).Error("Upload failed permanently")
			res.State = StateFailedTerminal
			return res
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			c.log.WithError(err).WithField("attempts", res.Attempts).Error("Upload retries exhausted")
			res.State = StateFailedRetryable
			return res
		}

		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt": res.Attempts,
			"delay":   delay.String(),
		}).Warn("Upload attempt failed, backing off")
		if err := c.cfg.Sleep(ctx, delay); err != nil {
			res.State, res.Err = StateCancelled, ErrCancelled
			return res
		}
		res.Retries++
	}
}

func (c *Coordinator) attempt(ctx context.Context, n int, progress chan Progress) error {
	body, size, err := c.source.Open()
	if err != nil {
		return &TerminalTransportError{Err: err}
	}
	defer body.Close()

	attemptCtx := ctx
	if c.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.cfg.AttemptTimeout)
		defer cancel()
	}

	// the transport may still read the body after Upload returns
	live := true
	err = c.transport.Upload(attemptCtx, c.url, c.contentType, body, size, func(sent int64) {
		c.emit(progress, Progress{Attempt: n, BytesSent: sent, TotalBytes: size, Fraction: fraction(sent, size)}, &live)
	})
	c.mu.Lock()
	live = false
	c.mu.Unlock()

	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && !IsRetryable(err) {
		err = &RetryableTransportError{Err: err}
	}
	return err
}

func fraction(sent, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(sent) / float64(total)
	if f > 1 {
		f = 1
	}
	return f
}

func (c *Coordinator) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// emit delivers p unless it would move progress backwards, the run was
// cancelled or live (guarded by c.mu) is false. A stale undelivered snapshot
// is replaced; the sender never blocks.
func (c *Coordinator) emit(ch chan Progress, p Progress, live *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled || (live != nil && !*live) || p.Fraction < c.fraction {
		return
	}
	c.fraction = p.Fraction
	for {
		select {
		case ch <- p:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
