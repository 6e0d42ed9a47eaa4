package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/ignition-core/internal/logic"
)

// Transport writes encoded frames to the link.
type Transport interface {
	Write(p []byte) (int, error)
}

// QueueStats counts queue activity.
type QueueStats struct {
	Depth    int    `json:"depth"`
	Sent     uint64 `json:"sent"`
	Dropped  uint64 `json:"dropped"`
	Failures uint64 `json:"failures"`
}

// Queue is a bounded outbound command queue. Send never blocks, so it can be
// called from the control loop.
type Queue struct {
	ch       chan logic.RemoteCommand
	closeMu  sync.RWMutex
	closed   bool
	sent     atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
}

// NewQueue creates a queue holding at most size commands.
func NewQueue(size int) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan logic.RemoteCommand, size)}
}

// Send enqueues c. It returns ErrQueueFull when the queue has no free slot;
// the command is dropped and never retried.
func (q *Queue) Send(c logic.RemoteCommand) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- c:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int { return len(q.ch) }

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Depth:    len(q.ch),
		Sent:     q.sent.Load(),
		Dropped:  q.dropped.Load(),
		Failures: q.failures.Load(),
	}
}

// Close stops accepting commands. Service drains what is left and returns.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Service writes queued commands to t, at most burst per period, until ctx is
// cancelled or the queue is closed. Encoding and write failures are logged
// and counted; the command is not retried.
func (q *Queue) Service(ctx context.Context, t Transport, period time.Duration, burst int, log *zap.SugaredLogger) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if burst < 1 {
		burst = 1
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !q.drain(t, burst, log) {
				return
			}
		}
	}
}

// drain writes up to burst queued commands. It returns false once the queue
// is closed and empty.
func (q *Queue) drain(t Transport, burst int, log *zap.SugaredLogger) bool {
	for i := 0; i < burst; i++ {
		select {
		case c, ok := <-q.ch:
			if !ok {
				return false
			}
			q.write(t, c, log)
		default:
			return true
		}
	}
	return true
}

func (q *Queue) write(t Transport, c logic.RemoteCommand, log *zap.SugaredLogger) {
	f, err := CommandFrame(c)
	if err == nil {
		var wire []byte
		if wire, err = Encode(f); err == nil {
			_, err = t.Write(wire)
		}
	}
	if err != nil {
		q.failures.Add(1)
		log.Warnw("remote command write failed", "command", c.String(), "err", err)
		return
	}
	q.sent.Add(1)
	log.Debugw("remote command sent", "command", c.String())
}
