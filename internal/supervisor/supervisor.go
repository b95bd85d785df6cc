// Package supervisor owns the encoder child process and the service
// state machine. All layout changes flow through it: it compiles the
// layout, starts a replacement child, re-points the broadcast reader,
// and only then retires the old process, so viewers see at most a short
// gap instead of a dead stream.
package supervisor

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaictv/mosaic/internal/broadcast"
	"github.com/mosaictv/mosaic/internal/compositor"
	"github.com/mosaictv/mosaic/internal/ffmpeg"
	"github.com/mosaictv/mosaic/internal/models"
)

// Mode is the service's coarse state.
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeStarting Mode = "starting"
	ModeLive     Mode = "live"
)

// Resolver maps channel ids to catalog entries.
type Resolver interface {
	Resolve(id string) (models.Channel, error)
}

// Config carries the supervisor's tunables.
type Config struct {
	// Binary is the encoder executable path.
	Binary string

	// StopGrace is how long a child gets between the termination signal
	// and SIGKILL.
	StopGrace time.Duration

	// IdleTimeout is how long the service stays live with no viewers.
	IdleTimeout time.Duration

	// MaxStreamSize recycles the child after it has produced this many
	// bytes. Zero disables size-based recycling.
	MaxStreamSize int64

	// RestartWindow bounds automatic restarts: a second unexpected exit
	// inside this window after a restart drops the service to idle.
	RestartWindow time.Duration

	// WatchdogInterval is the watchdog tick period.
	WatchdogInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.StopGrace <= 0 {
		c.StopGrace = 3 * time.Second
	}
	if c.RestartWindow <= 0 {
		c.RestartWindow = 5 * time.Second
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = 5 * time.Second
	}
}

// Status is a point-in-time snapshot for the control surface.
type Status struct {
	Mode             Mode
	ConnectedClients int
	TimeUntilIdle    float64
	Profile          ffmpeg.Profile
}

// Supervisor serializes child lifecycle transitions behind one mutex.
// Lock order across the service is catalog, then supervisor, then hub;
// catalog resolution therefore happens before the supervisor lock is
// taken.
type Supervisor struct {
	cfg      Config
	compiler *compositor.Compiler
	catalog  Resolver
	hub      *broadcast.Hub
	logger   *slog.Logger

	// execCommand builds the child command from a compiled argument
	// vector. Replaced in tests.
	execCommand func(args []string) *exec.Cmd

	mu            sync.Mutex
	mode          Mode
	current       *child
	currentArgs   []string
	currentLayout *models.LayoutConfig
	lastGood      *models.LayoutConfig
	lastRestart   time.Time

	lastActivity atomic.Int64 // unix nanos
}

// New wires a supervisor to its collaborators. The hub's change hook is
// claimed so viewer churn refreshes the activity clock.
func New(cfg Config, compiler *compositor.Compiler, catalog Resolver, hub *broadcast.Hub, logger *slog.Logger) *Supervisor {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:      cfg,
		compiler: compiler,
		catalog:  catalog,
		hub:      hub,
		logger:   logger,
		mode:     ModeIdle,
	}
	s.execCommand = func(args []string) *exec.Cmd {
		return exec.Command(cfg.Binary, args...)
	}
	s.Touch()
	hub.OnChange = s.Touch
	return s
}

// Touch refreshes the idle-timeout clock.
func (s *Supervisor) Touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *Supervisor) lastActivityTime() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Mode returns the current state.
func (s *Supervisor) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Status snapshots the control-surface view of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	mode := s.mode
	s.mu.Unlock()

	st := Status{
		Mode:             mode,
		ConnectedClients: s.hub.Count(),
		Profile:          s.compiler.Profile(),
	}
	if mode == ModeLive {
		remaining := s.cfg.IdleTimeout
		if st.ConnectedClients == 0 {
			remaining -= time.Since(s.lastActivityTime())
			if remaining < 0 {
				remaining = 0
			}
		}
		st.TimeUntilIdle = remaining.Seconds()
	}
	return st
}

// Current returns the most recently applied layout, or nil if no layout
// has ever been applied.
func (s *Supervisor) Current() *models.LayoutConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentLayout != nil {
		return s.currentLayout.Clone()
	}
	return s.lastGood.Clone()
}

// Volumes returns the effective per-slot gains of the applied layout.
func (s *Supervisor) Volumes() (map[string]float64, error) {
	layout := s.Current()
	if layout == nil {
		return nil, models.NewError(models.ErrKindNotFound, "no layout has been set")
	}
	layout.Normalize()
	return layout.Volumes, nil
}

// Apply compiles the layout and replaces the child optimistically: the
// new process starts and takes over the broadcast before the old one is
// signalled. A compile or spawn failure leaves the prior child running.
func (s *Supervisor) Apply(ctx context.Context, layout *models.LayoutConfig) error {
	args, err := s.compile(layout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.startLocked(args, layout); err != nil {
		return err
	}
	s.lastRestart = time.Time{}
	return nil
}

// EnsureLive brings the service up from the last applied layout if it
// is not already live. Used by the stream endpoint's cold start.
func (s *Supervisor) EnsureLive(ctx context.Context) error {
	s.mu.Lock()
	mode := s.mode
	last := s.lastGood.Clone()
	s.mu.Unlock()

	if mode == ModeLive {
		return nil
	}
	if last == nil {
		return models.NewError(models.ErrKindNotFound, "no layout has been set")
	}

	args, err := s.compile(last)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeLive {
		return nil
	}
	return s.startLocked(args, last)
}

// SwapAudio re-applies the current layout with a different audio slot.
// Per-slot volume overrides are discarded, matching a fresh layout set
// that names only the new audio source.
func (s *Supervisor) SwapAudio(ctx context.Context, slot string) error {
	layout, err := s.appliedLayout()
	if err != nil {
		return err
	}
	if _, ok := layout.Streams[slot]; !ok {
		return models.NewError(models.ErrKindBadLayout, "audio source slot %q has no stream assigned", slot)
	}
	layout.AudioSlot = slot
	layout.Volumes = nil
	return s.Apply(ctx, layout)
}

// SetVolume adjusts one slot's gain. When live this replaces the child
// with an otherwise identical layout; when idle it only updates the
// stored layout for the next start.
func (s *Supervisor) SetVolume(ctx context.Context, slot string, volume float64) error {
	s.mu.Lock()
	if s.mode != ModeLive {
		defer s.mu.Unlock()
		if s.lastGood == nil {
			return models.NewError(models.ErrKindNotFound, "no layout has been set")
		}
		if _, ok := s.lastGood.Streams[slot]; !ok {
			return models.NewError(models.ErrKindBadLayout, "slot %q has no stream assigned", slot)
		}
		if s.lastGood.Volumes == nil {
			s.lastGood.Volumes = make(map[string]float64)
		}
		s.lastGood.Volumes[slot] = models.ClampVolume(volume)
		return nil
	}
	layout := s.currentLayout.Clone()
	s.mu.Unlock()

	if _, ok := layout.Streams[slot]; !ok {
		return models.NewError(models.ErrKindBadLayout, "slot %q has no stream assigned", slot)
	}
	if layout.Volumes == nil {
		layout.Volumes = make(map[string]float64)
	}
	layout.Volumes[slot] = models.ClampVolume(volume)
	return s.Apply(ctx, layout)
}

// Stop terminates the child, disconnects every viewer, and drops to
// idle. The last applied layout is kept for later cold starts.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	c := s.current
	s.current = nil
	s.currentArgs = nil
	s.currentLayout = nil
	s.mode = ModeIdle
	s.mu.Unlock()

	if c != nil {
		s.logger.Info("stopping encoder", slog.Int("pid", c.pid()))
		c.terminate(s.cfg.StopGrace, s.logger)
	}
	s.hub.DisconnectAll()
}

// Recycle restarts the child with its current argument vector. No-op
// unless live.
func (s *Supervisor) Recycle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeLive || s.current == nil {
		return
	}
	s.logger.Info("recycling encoder",
		slog.Int("pid", s.current.pid()),
		slog.Int64("bytes_read", s.hub.BytesRead()),
	)
	if err := s.startLocked(s.currentArgs, s.currentLayout); err != nil {
		s.logger.Error("recycle failed", slog.String("error", err.Error()))
	}
}

func (s *Supervisor) appliedLayout() (*models.LayoutConfig, error) {
	layout := s.Current()
	if layout == nil {
		return nil, models.NewError(models.ErrKindNotFound, "no layout has been set")
	}
	return layout, nil
}

// compile resolves every slot's channel and produces the argument
// vector. Runs before the supervisor lock is taken.
func (s *Supervisor) compile(layout *models.LayoutConfig) ([]string, error) {
	if err := compositor.Validate(layout); err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(layout.Streams))
	for slot, id := range layout.Streams {
		ch, err := s.catalog.Resolve(id)
		if err != nil {
			return nil, models.NewError(models.ErrKindBadLayout, "slot %q references unknown channel %q", slot, id)
		}
		urls[slot] = ch.StreamURL
	}
	return s.compiler.Compile(layout, urls)
}

// startLocked spawns a child for args and hands it the broadcast. The
// previous child, if any, is retired only after the new one is running.
// Callers hold s.mu.
func (s *Supervisor) startLocked(args []string, layout *models.LayoutConfig) error {
	prev := s.current
	if prev == nil {
		s.mode = ModeStarting
	}

	c, err := startChild(s.execCommand(args), s.logger)
	if err != nil {
		if prev == nil {
			s.mode = ModeIdle
		}
		return models.WrapError(models.ErrKindEncoderFailed, err, "starting encoder")
	}

	s.current = c
	s.currentArgs = args
	s.currentLayout = layout.Clone()
	s.lastGood = layout.Clone()
	s.mode = ModeLive

	gen := s.hub.NextGeneration()
	go s.hub.Run(gen, c.stdout, func(err error) { s.onReaderDone(c, err) })

	if prev != nil {
		go prev.terminate(s.cfg.StopGrace, s.logger)
	}

	s.logger.Info("encoder started",
		slog.Int("pid", c.pid()),
		slog.String("profile", s.compiler.Profile().Name),
		slog.Int("args", len(args)),
	)
	s.Touch()
	return nil
}

// onReaderDone runs when a child's output reaches end-of-stream. For a
// planned replacement or stop this is a no-op; an unexpected exit gets
// one automatic restart, and a second failure inside the restart window
// drops the service to idle.
func (s *Supervisor) onReaderDone(c *child, readErr error) {
	s.mu.Lock()

	if c != s.current || c.stopping.Load() {
		s.mu.Unlock()
		return
	}

	s.logger.Warn("encoder exited unexpectedly",
		slog.Int("pid", c.pid()),
		slog.Any("exit_error", c.exitErr),
	)

	if s.lastRestart.IsZero() || time.Since(s.lastRestart) > s.cfg.RestartWindow {
		s.lastRestart = time.Now()
		s.logger.Info("restarting encoder")
		err := s.startLocked(s.currentArgs, s.currentLayout)
		if err == nil {
			s.mu.Unlock()
			return
		}
		s.logger.Error("restart failed", slog.String("error", err.Error()))
	} else {
		s.logger.Error("encoder failed twice in quick succession, going idle")
	}

	s.current = nil
	s.currentArgs = nil
	s.currentLayout = nil
	s.mode = ModeIdle
	s.mu.Unlock()

	s.hub.DisconnectAll()
}
