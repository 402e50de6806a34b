package shipper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/instrumentkit/instrumentkit/host/internal/config"
	"github.com/instrumentkit/instrumentkit/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	flushPoll         = 50 * time.Millisecond
)

// Shipper buffers run reports and ships them to the results server.
// Ship() is non-blocking; when the buffer is full the oldest report is evicted.
// Run() must be called in a goroutine to drain the buffer.
type Shipper struct {
	cfg     config.HostConfig
	buf     chan *types.RunReport
	client  *http.Client
	pending atomic.Int64 // queued plus in flight

	retryBase time.Duration
}

// New creates a Shipper using the given host config.
func New(cfg config.HostConfig) *Shipper {
	size := cfg.BufferSize
	if size <= 0 {
		size = config.DefaultBufferSize
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = config.DefaultSendTimeout
	}
	return &Shipper{
		cfg:       cfg,
		buf:       make(chan *types.RunReport, size),
		client:    &http.Client{Timeout: timeout},
		retryBase: backoffInitial,
	}
}

// Ship enqueues rep. If the buffer is full the oldest entry is evicted to
// make room.
func (s *Shipper) Ship(rep *types.RunReport) {
	s.pending.Add(1)
	select {
	case s.buf <- rep:
	default:
		select {
		case old := <-s.buf:
			s.pending.Add(-1)
			slog.Warn("shipper: buffer full, evicted oldest report",
				"evicted", old.ID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- rep
	}
}

// Pending returns the number of reports not yet delivered or discarded.
func (s *Shipper) Pending() int {
	return int(s.pending.Load())
}

// Run drains the buffer, sending reports to the server. Failed sends are
// re-queued and retried after a backoff. Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff(s.retryBase)

	for {
		select {
		case <-ctx.Done():
			return

		case rep := <-s.buf:
			err := s.send(ctx, rep)
			switch {
			case err == nil:
				bo.reset()
				slog.Debug("shipper: report delivered", "run", rep.ID, "device", rep.Device)
			case isPermanentError(err):
				slog.Error("shipper: permanent send error, discarding report",
					"run", rep.ID, "err", err)
			default:
				// Put the report back; if the buffer filled up meanwhile it is lost.
				select {
				case s.buf <- rep:
				default:
					s.pending.Add(-1)
				}
				wait := bo.next()
				slog.Warn("shipper: send failed, will retry",
					"endpoint", s.cfg.ServerEndpoint, "err", err, "retry_in", wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
				continue
			}
			s.pending.Add(-1)
		}
	}
}

// Flush blocks until every queued report has been delivered or discarded,
// or ctx is done. Run must be running for the buffer to drain.
func (s *Shipper) Flush(ctx context.Context) error {
	t := time.NewTicker(flushPoll)
	defer t.Stop()
	for s.Pending() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("shipper: %d reports not delivered: %w", s.Pending(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

// statusError is a non-2xx response from the server.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// isPermanentError returns true for responses that indicate the report
// itself or the credentials are invalid, so retrying cannot help.
func isPermanentError(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	initial time.Duration
	current time.Duration
}

func newBackoff(initial time.Duration) *backoff {
	return &backoff{initial: initial, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = b.initial
}
