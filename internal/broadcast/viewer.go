// Package broadcast fans a single byte stream out to a mutable set of
// viewers. Each viewer owns a bounded chunk queue; viewers that stop
// draining are evicted so one broken consumer never stalls the rest.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Viewer is one attached consumer of the broadcast.
type Viewer struct {
	// ID uniquely identifies the viewer for detach and logging.
	ID uuid.UUID

	// ConnectedAt is when the viewer attached.
	ConnectedAt time.Time

	// RemoteAddr and UserAgent describe the underlying connection.
	RemoteAddr string
	UserAgent  string

	// mu serialises send against close so the broadcaster can never
	// hit a channel closed mid-send by a concurrent detach.
	mu     sync.Mutex
	queue  chan []byte
	closed bool

	bytesQueued atomic.Int64
}

func newViewer(depth int, remoteAddr, userAgent string) *Viewer {
	return &Viewer{
		ID:          uuid.New(),
		ConnectedAt: time.Now(),
		RemoteAddr:  remoteAddr,
		UserAgent:   userAgent,
		queue:       make(chan []byte, depth),
	}
}

// Chunks returns the viewer's receive channel. The channel is closed
// when the viewer is detached or evicted.
func (v *Viewer) Chunks() <-chan []byte {
	return v.queue
}

// BytesQueued returns the total bytes enqueued for this viewer.
func (v *Viewer) BytesQueued() int64 {
	return v.bytesQueued.Load()
}

// close shuts the queue exactly once.
func (v *Viewer) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.queue)
}

// send enqueues without blocking; it reports false when the queue is at
// capacity. Sending to a closed viewer is a no-op.
func (v *Viewer) send(chunk []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return true
	}
	select {
	case v.queue <- chunk:
		v.bytesQueued.Add(int64(len(chunk)))
		return true
	default:
		return false
	}
}
