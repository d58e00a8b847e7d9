package uploader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bytesSource []byte

func (s bytesSource) Open() (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(s)), int64(len(s)), nil
}

// scriptedTransport replays one error per attempt; nil means success.
// It reports progress in quarters before returning.
type scriptedTransport struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (s *scriptedTransport) Upload(_ context.Context, _, _ string, body io.Reader, size int64, onProgress func(int64)) error {
	s.mu.Lock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.results) {
		err = s.results[i]
	} else if len(s.results) > 0 {
		err = s.results[len(s.results)-1]
	}
	s.mu.Unlock()

	_, _ = io.Copy(io.Discard, body)
	steps := int64(4)
	if err != nil {
		steps = 2
	}
	for q := int64(1); q <= steps; q++ {
		onProgress(size * q / 4)
	}
	return err
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testConfig(sleep func(context.Context, time.Duration) error) Config {
	logger, _ := test.NewNullLogger()
	return Config{BaseDelay: time.Second, Sleep: sleep, Logger: logger}
}

func drain(ch <-chan Progress) []Progress {
	var out []Progress
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func retryable() error { return &RetryableTransportError{StatusCode: 503, Err: errors.New("unavailable")} }

func TestCoordinator_SucceedsAfterTwoRetriesWithDoublingDelays(t *testing.T) {
	transport := &scriptedTransport{results: []error{retryable(), retryable(), nil}}
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 400)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	progress := drain(ch)
	res := c.Wait()

	assert.Equal(t, StateSucceeded, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, StateSucceeded, c.State())

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Fraction, progress[i-1].Fraction)
	}
	assert.Equal(t, 1.0, progress[len(progress)-1].Fraction)
}

func TestCoordinator_TerminalErrorFailsWithoutRetry(t *testing.T) {
	transport := &scriptedTransport{results: []error{&TerminalTransportError{StatusCode: 403, Err: errors.New("expired")}}}
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	drain(ch)
	res := c.Wait()

	assert.Equal(t, StateFailedTerminal, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0, res.Retries)
	assert.Empty(t, sleeper.delays)
	var terminal *TerminalTransportError
	assert.True(t, errors.As(res.Err, &terminal))
}

func TestCoordinator_ExhaustedRetriesThenManualRetry(t *testing.T) {
	transport := &scriptedTransport{results: []error{retryable(), retryable(), retryable(), retryable(), nil}}
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	drain(ch)
	res := c.Wait()
	assert.Equal(t, StateFailedRetryable, res.State)
	assert.Equal(t, DefaultMaxRetries+1, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)

	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	ch, err = c.Retry(context.Background())
	require.NoError(t, err)
	drain(ch)
	res = c.Wait()
	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 1, res.Attempts)

	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestCoordinator_CancelDuringBackoffEndsCancelled(t *testing.T) {
	transport := &scriptedTransport{results: []error{retryable(), nil}}
	inBackoff := make(chan struct{})
	sleep := func(ctx context.Context, _ time.Duration) error {
		close(inBackoff)
		<-ctx.Done()
		return ctx.Err()
	}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	go drain(ch)

	<-inBackoff
	c.Cancel()
	res := c.Wait()

	assert.Equal(t, StateCancelled, res.State)
	assert.ErrorIs(t, res.Err, ErrCancelled)
	assert.Equal(t, 1, transport.Calls())
	assert.Equal(t, StateCancelled, c.State())

	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCoordinator_ParentContextCancelsRun(t *testing.T) {
	transport := &scriptedTransport{results: []error{retryable()}}
	sleeper := &sleepRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)
	ch, err := c.Start(ctx)
	require.NoError(t, err)
	drain(ch)

	assert.Equal(t, StateCancelled, c.Wait().State)
	assert.Equal(t, 0, transport.Calls())
}

// blockingTransport holds the attempt open until released.
type blockingTransport struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTransport) Upload(ctx context.Context, _, _ string, _ io.Reader, size int64, onProgress func(int64)) error {
	onProgress(size / 2)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		onProgress(size)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestCoordinator_RejectsSecondAttemptWhileInFlight(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	<-transport.started
	assert.Equal(t, StateUploading, c.State())

	_, err = c.Retry(context.Background())
	assert.ErrorIs(t, err, ErrAttemptInFlight)
	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAttemptInFlight)

	close(transport.release)
	drain(ch)
	assert.Equal(t, StateSucceeded, c.Wait().State)
}

func TestCoordinator_CancelMidTransferEmitsNothingFurther(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{}), release: make(chan struct{})}
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(transport, bytesSource(make([]byte, 10)), "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	<-transport.started
	first := <-ch
	assert.Equal(t, 0.5, first.Fraction)

	c.Cancel()
	assert.Empty(t, drain(ch))
	res := c.Wait()
	assert.Equal(t, StateCancelled, res.State)
	assert.Empty(t, sleeper.delays)
}

func TestCoordinator_CancelBeforeStart(t *testing.T) {
	c, err := NewCoordinator(&scriptedTransport{}, bytesSource(nil), "http://store/put", "video/mp4", testConfig(nil))
	require.NoError(t, err)

	c.Cancel()
	assert.Equal(t, StateCancelled, c.Wait().State)
	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCoordinator_SourceErrorIsTerminal(t *testing.T) {
	sleeper := &sleepRecorder{}
	c, err := NewCoordinator(&scriptedTransport{}, FileSource{Path: "/does/not/exist.mp4"}, "http://store/put", "video/mp4", testConfig(sleeper.Sleep))
	require.NoError(t, err)

	ch, err := c.Start(context.Background())
	require.NoError(t, err)
	drain(ch)
	res := c.Wait()
	assert.Equal(t, StateFailedTerminal, res.State)
	assert.Empty(t, sleeper.delays)
}
