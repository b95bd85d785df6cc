package broadcast

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Hub owns the viewer set and replicates chunks into every queue.
type Hub struct {
	mu      sync.RWMutex
	viewers map[uuid.UUID]*Viewer

	chunkSize  int
	queueDepth int
	logger     *slog.Logger

	bytesRead atomic.Int64

	// generation identifies the reader currently allowed to broadcast.
	// Readers started under an older generation keep draining their
	// pipe but their chunks are discarded.
	generation atomic.Int64

	// OnChange, when set, is called after every attach and detach.
	// Used to refresh the supervisor's activity timestamp.
	OnChange func()
}

// NewHub creates an empty hub. chunkSize is the reader's read size and
// queueDepth bounds each viewer's backlog.
func NewHub(chunkSize, queueDepth int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		viewers:    make(map[uuid.UUID]*Viewer),
		chunkSize:  chunkSize,
		queueDepth: queueDepth,
		logger:     logger,
	}
}

// Attach registers a new viewer and returns its handle.
func (h *Hub) Attach(remoteAddr, userAgent string) *Viewer {
	v := newViewer(h.queueDepth, remoteAddr, userAgent)

	h.mu.Lock()
	h.viewers[v.ID] = v
	count := len(h.viewers)
	h.mu.Unlock()

	h.logger.Info("viewer attached",
		slog.String("viewer_id", v.ID.String()),
		slog.String("remote_addr", remoteAddr),
		slog.Int("viewers", count),
	)
	h.notifyChange()
	return v
}

// Detach removes a viewer and closes its queue. Detaching an unknown or
// already-evicted viewer is a no-op.
func (h *Hub) Detach(id uuid.UUID) {
	h.mu.Lock()
	v, ok := h.viewers[id]
	if ok {
		delete(h.viewers, id)
	}
	count := len(h.viewers)
	h.mu.Unlock()

	if !ok {
		return
	}
	v.close()

	h.logger.Info("viewer detached",
		slog.String("viewer_id", id.String()),
		slog.Int64("bytes_queued", v.BytesQueued()),
		slog.Int("viewers", count),
	)
	h.notifyChange()
}

// Count returns the number of attached viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Viewers returns a snapshot of the attached viewers.
func (h *Hub) Viewers() []*Viewer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		out = append(out, v)
	}
	return out
}

// BytesRead returns the cumulative bytes the current generation's
// reader has consumed.
func (h *Hub) BytesRead() int64 {
	return h.bytesRead.Load()
}

// NextGeneration retires the current reader and returns the token for
// its replacement. The byte counter restarts at zero so size-based
// recycling measures per-instance output.
func (h *Hub) NextGeneration() int64 {
	gen := h.generation.Add(1)
	h.bytesRead.Store(0)
	return gen
}

// DisconnectAll detaches every viewer, closing their queues.
func (h *Hub) DisconnectAll() {
	h.mu.Lock()
	victims := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		victims = append(victims, v)
	}
	h.viewers = make(map[uuid.UUID]*Viewer)
	h.mu.Unlock()

	for _, v := range victims {
		v.close()
	}
	if len(victims) > 0 {
		h.logger.Info("disconnected all viewers", slog.Int("count", len(victims)))
		h.notifyChange()
	}
}

// Broadcast replicates one chunk into every viewer queue. Viewers whose
// queues are full are evicted after the chunk is delivered to the rest.
func (h *Hub) Broadcast(chunk []byte) {
	h.mu.RLock()
	snapshot := make([]*Viewer, 0, len(h.viewers))
	for _, v := range h.viewers {
		snapshot = append(snapshot, v)
	}
	h.mu.RUnlock()

	var evict []*Viewer
	for _, v := range snapshot {
		if !v.send(chunk) {
			evict = append(evict, v)
		}
	}

	for _, v := range evict {
		h.logger.Warn("evicting slow viewer",
			slog.String("viewer_id", v.ID.String()),
			slog.String("remote_addr", v.RemoteAddr),
			slog.Int64("bytes_queued", v.BytesQueued()),
		)
		h.Detach(v.ID)
	}
}

// Run reads fixed-size chunks from r until end-of-stream, broadcasting
// each one. gen must come from NextGeneration; once a newer generation
// has been claimed the loop keeps draining r so the retiring child's
// pipe never blocks, but nothing it reads reaches viewers or the byte
// counter. onDone is invoked with the terminal read error (io.EOF for
// a clean end). Run blocks; callers start it in its own goroutine, one
// per child stdout.
func (h *Hub) Run(gen int64, r io.Reader, onDone func(err error)) {
	buf := make([]byte, h.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 && gen == h.generation.Load() {
			h.bytesRead.Add(int64(n))
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			h.Broadcast(chunk)
		}
		if err != nil {
			if onDone != nil {
				onDone(err)
			}
			return
		}
	}
}

func (h *Hub) notifyChange() {
	if h.OnChange != nil {
		h.OnChange()
	}
}
