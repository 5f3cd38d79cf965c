package playback

import (
	"context"
	"encoding/base64"
	"sync"

	"go.uber.org/zap"

	"github.com/sumedhnvda/GM-uni/internal/v1/logging"
	"github.com/sumedhnvda/GM-uni/internal/v1/metrics"
)

// Sink renders decoded PCM. Write blocks for the duration of the render
// hand-off; the queue relies on that to pace the drain.
type Sink interface {
	Write(pcm []byte) error
	Close() error
}

// Queue serializes audio chunk playback: exactly one drain worker, at most
// one chunk rendering at a time, strict arrival order. A bad chunk is
// skipped, never allowed to stall the stream behind it.
type Queue struct {
	sink Sink

	mu      sync.Mutex
	pending []string
	closed  bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue starts the drain worker over the given sink.
func NewQueue(sink Sink) *Queue {
	q := &Queue{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.drain()
	return q
}

// Enqueue appends a base64 PCM chunk. Chunks arriving after Close are
// dropped and counted.
func (q *Queue) Enqueue(chunk string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		metrics.PlaybackChunks.WithLabelValues("dropped").Inc()
		return
	}
	q.pending = append(q.pending, chunk)
	metrics.PlaybackQueueDepth.Set(float64(len(q.pending)))
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of chunks waiting to render.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops the queue after the in-flight chunk finishes, discards
// anything still pending, and closes the sink. Idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		dropped := len(q.pending)
		q.pending = nil
		q.mu.Unlock()

		for i := 0; i < dropped; i++ {
			metrics.PlaybackChunks.WithLabelValues("dropped").Inc()
		}

		select {
		case q.wake <- struct{}{}:
		default:
		}
		<-q.done
		if err := q.sink.Close(); err != nil {
			logging.Warn(context.Background(), "failed to close playback sink", zap.Error(err))
		}
		metrics.PlaybackQueueDepth.Set(0)
	})
}

func (q *Queue) drain() {
	defer close(q.done)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			<-q.wake
			continue
		}
		chunk := q.pending[0]
		q.pending = q.pending[1:]
		metrics.PlaybackQueueDepth.Set(float64(len(q.pending)))
		q.mu.Unlock()

		pcm, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			logging.Warn(context.Background(), "skipping malformed audio chunk", zap.Error(err))
			metrics.PlaybackChunks.WithLabelValues("malformed").Inc()
			continue
		}
		if err := q.sink.Write(pcm); err != nil {
			logging.Warn(context.Background(), "playback sink write failed", zap.Error(err))
			metrics.PlaybackChunks.WithLabelValues("error").Inc()
			continue
		}
		metrics.PlaybackChunks.WithLabelValues("played").Inc()
	}
}
