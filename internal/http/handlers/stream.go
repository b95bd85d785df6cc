package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mosaictv/mosaic/internal/broadcast"
	"github.com/mosaictv/mosaic/internal/models"
)

// StreamHandler serves the MPEG-TS broadcast. Raw handler: the status
// line must not commit until the first chunk is available.
type StreamHandler struct {
	supervisor      SupervisorService
	hub             *broadcast.Hub
	startupDeadline time.Duration
	logger          *slog.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(supervisor SupervisorService, hub *broadcast.Hub, startupDeadline time.Duration, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		supervisor:      supervisor,
		hub:             hub,
		startupDeadline: startupDeadline,
		logger:          logger,
	}
}

// RegisterRoutes registers the stream route.
func (h *StreamHandler) RegisterRoutes(router chi.Router) {
	router.Get("/stream", h.Stream)
}

// Stream attaches the caller as a viewer, cold-starting the encoder
// from the last applied layout when idle. Headers are withheld until
// the first chunk arrives or the startup deadline expires.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if err := h.supervisor.EnsureLive(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	viewer := h.hub.Attach(r.RemoteAddr, r.UserAgent())
	defer h.hub.Detach(viewer.ID)

	deadline := time.NewTimer(h.startupDeadline)
	defer deadline.Stop()

	var first []byte
	select {
	case chunk, ok := <-viewer.Chunks():
		if !ok {
			writeError(w, models.NewError(models.ErrKindEncoderFailed, "stream ended before any output"))
			return
		}
		first = chunk
	case <-deadline.C:
		writeError(w, models.NewError(models.ErrKindStartupTimeout, "no output within %s", h.startupDeadline))
		return
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if _, err := w.Write(first); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case chunk, ok := <-viewer.Chunks():
			if !ok {
				return
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}
