package supervisor

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaictv/mosaic/internal/broadcast"
	"github.com/mosaictv/mosaic/internal/compositor"
	"github.com/mosaictv/mosaic/internal/ffmpeg"
	"github.com/mosaictv/mosaic/internal/models"
)

type fakeResolver map[string]models.Channel

func (f fakeResolver) Resolve(id string) (models.Channel, error) {
	ch, ok := f[id]
	if !ok {
		return models.Channel{}, models.NewError(models.ErrKindNotFound, "channel %q not found", id)
	}
	return ch, nil
}

// testRig swaps the encoder for /bin/sh so lifecycle transitions can be
// exercised against real processes. script receives the spawn ordinal.
type testRig struct {
	sup    *Supervisor
	hub    *broadcast.Hub
	spawns atomic.Int32
}

func newRig(t *testing.T, cfg Config, script func(n int) string) *testRig {
	t.Helper()

	profile, ok := ffmpeg.ProfileByName("cpu")
	require.True(t, ok)

	resolver := fakeResolver{
		"c1": {ID: "c1", StreamURL: "http://example.com/one.ts"},
		"c2": {ID: "c2", StreamURL: "http://example.com/two.ts"},
	}
	hub := broadcast.NewHub(16, 100, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if cfg.StopGrace == 0 {
		cfg.StopGrace = 200 * time.Millisecond
	}
	sup := New(cfg, compositor.New(profile, "mosaic-test"), resolver, hub,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	rig := &testRig{sup: sup, hub: hub}
	sup.execCommand = func(args []string) *exec.Cmd {
		n := int(rig.spawns.Add(1))
		return exec.Command("/bin/sh", "-c", script(n))
	}
	t.Cleanup(sup.Stop)
	return rig
}

func pipLayout() *models.LayoutConfig {
	return &models.LayoutConfig{
		Kind:      models.LayoutPiP,
		Streams:   map[string]string{"main": "c1", "inset": "c2"},
		AudioSlot: "main",
	}
}

func steady(int) string { return "printf live; exec sleep 60" }

func TestApplyStartsChildAndGoesLive(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)

	v := rig.hub.Attach("", "")
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	assert.Equal(t, ModeLive, rig.sup.Mode())
	assert.Equal(t, int32(1), rig.spawns.Load())

	select {
	case chunk := <-v.Chunks():
		assert.Equal(t, "live", string(chunk))
	case <-time.After(2 * time.Second):
		t.Fatal("no output from child")
	}

	st := rig.sup.Status()
	assert.Equal(t, ModeLive, st.Mode)
	assert.Equal(t, 1, st.ConnectedClients)
	assert.Equal(t, "cpu", st.Profile.Name)
	assert.Equal(t, time.Minute.Seconds(), st.TimeUntilIdle)

	rig.sup.Stop()
	assert.Equal(t, ModeIdle, rig.sup.Mode())

	require.Eventually(t, func() bool {
		_, open := <-v.Chunks()
		return !open
	}, 2*time.Second, 10*time.Millisecond, "viewer disconnected on stop")
}

func TestApplyRejectsUnknownChannel(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)

	bad := pipLayout()
	bad.Streams["inset"] = "nope"
	err := rig.sup.Apply(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))
	assert.Equal(t, ModeIdle, rig.sup.Mode())
	assert.Equal(t, int32(0), rig.spawns.Load())
}

func TestFailedReplaceLeavesPriorChildRunning(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, func(int) string {
		return "while :; do printf x; sleep 0.05; done"
	})
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	// an invalid layout never reaches the child
	bad := pipLayout()
	bad.AudioSlot = "nowhere"
	err := rig.sup.Apply(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))

	assert.Equal(t, ModeLive, rig.sup.Mode())
	assert.Equal(t, int32(1), rig.spawns.Load())
	assert.Equal(t, "main", rig.sup.Current().AudioSlot)

	// a viewer attached after the failed replace still gets output
	v := rig.hub.Attach("", "")
	select {
	case <-v.Chunks():
	case <-time.After(2 * time.Second):
		t.Fatal("prior child no longer streaming")
	}
}

func TestReplaceSilencesRetiredChild(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute, StopGrace: time.Second}, func(n int) string {
		if n == 1 {
			return "while :; do printf AAAA; sleep 0.02; done"
		}
		return "while :; do printf BBBB; sleep 0.02; done"
	})
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	second := pipLayout()
	second.AudioSlot = "inset"
	require.NoError(t, rig.sup.Apply(context.Background(), second))
	require.Equal(t, int32(2), rig.spawns.Load())

	// a viewer attached after the swap only ever sees the replacement
	// child's output, even while the retired one is still draining
	v := rig.hub.Attach("", "")
	for i := 0; i < 5; i++ {
		select {
		case chunk := <-v.Chunks():
			assert.NotContains(t, string(chunk), "A", "chunk %d came from the retired child", i)
		case <-time.After(2 * time.Second):
			t.Fatal("no output from replacement child")
		}
	}
}

func TestUnexpectedExitRestartsOnce(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, func(n int) string {
		if n == 1 {
			return "exit 1"
		}
		return "printf recovered; exec sleep 60"
	})

	v := rig.hub.Attach("", "")
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	select {
	case chunk := <-v.Chunks():
		assert.Equal(t, "recovered", string(chunk))
	case <-time.After(2 * time.Second):
		t.Fatal("restarted child produced no output")
	}
	assert.Equal(t, ModeLive, rig.sup.Mode())
	assert.Equal(t, int32(2), rig.spawns.Load())
}

func TestSecondFailureInWindowGoesIdle(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, func(int) string {
		return "exit 1"
	})

	v := rig.hub.Attach("", "")
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	require.Eventually(t, func() bool {
		return rig.sup.Mode() == ModeIdle
	}, 3*time.Second, 10*time.Millisecond, "second crash drops to idle")
	assert.Equal(t, int32(2), rig.spawns.Load())
	assert.Equal(t, 0, rig.hub.Count())

	require.Eventually(t, func() bool {
		_, open := <-v.Chunks()
		return !open
	}, 2*time.Second, 10*time.Millisecond)

	// the failed layout survives for a later cold start attempt
	assert.NotNil(t, rig.sup.Current())
}

func TestIdleWatchdogStopsWithoutViewers(t *testing.T) {
	rig := newRig(t, Config{
		IdleTimeout:      50 * time.Millisecond,
		WatchdogInterval: 10 * time.Millisecond,
	}, steady)

	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.sup.RunWatchdog(ctx)

	require.Eventually(t, func() bool {
		return rig.sup.Mode() == ModeIdle
	}, 3*time.Second, 10*time.Millisecond, "idle timeout fired")
}

func TestIdleWatchdogHeldOffByViewer(t *testing.T) {
	rig := newRig(t, Config{
		IdleTimeout:      50 * time.Millisecond,
		WatchdogInterval: 10 * time.Millisecond,
	}, steady)

	v := rig.hub.Attach("", "")
	go func() {
		for range v.Chunks() {
		}
	}()
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.sup.RunWatchdog(ctx)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, ModeLive, rig.sup.Mode())
}

func TestSizeBoundRecyclesChild(t *testing.T) {
	rig := newRig(t, Config{
		IdleTimeout:      time.Minute,
		MaxStreamSize:    4,
		WatchdogInterval: 10 * time.Millisecond,
	}, func(int) string {
		return "printf 12345678; exec sleep 60"
	})

	v := rig.hub.Attach("", "")
	go func() {
		for range v.Chunks() {
		}
	}()
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.sup.RunWatchdog(ctx)

	require.Eventually(t, func() bool {
		return rig.spawns.Load() >= 2
	}, 3*time.Second, 10*time.Millisecond, "size bound triggers recycle")
	assert.Equal(t, ModeLive, rig.sup.Mode())
}

func TestSwapAudioReplacesChild(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	require.NoError(t, rig.sup.SwapAudio(context.Background(), "inset"))
	assert.Equal(t, int32(2), rig.spawns.Load())
	assert.Equal(t, "inset", rig.sup.Current().AudioSlot)

	volumes, err := rig.sup.Volumes()
	require.NoError(t, err)
	assert.Equal(t, 1.0, volumes["inset"])
	assert.Equal(t, 0.0, volumes["main"])

	err = rig.sup.SwapAudio(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))
}

func TestSetVolumeLiveAndIdle(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)
	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))

	require.NoError(t, rig.sup.SetVolume(context.Background(), "inset", 1.5))
	assert.Equal(t, int32(2), rig.spawns.Load(), "live volume change replaces the child")

	volumes, err := rig.sup.Volumes()
	require.NoError(t, err)
	assert.Equal(t, 1.0, volumes["inset"], "gain clamped to 1.0")
	assert.Equal(t, 1.0, volumes["main"])

	rig.sup.Stop()
	require.NoError(t, rig.sup.SetVolume(context.Background(), "inset", 0.25))
	assert.Equal(t, int32(2), rig.spawns.Load(), "idle volume change does not start a child")

	volumes, err = rig.sup.Volumes()
	require.NoError(t, err)
	assert.Equal(t, 0.25, volumes["inset"])

	err = rig.sup.SetVolume(context.Background(), "ghost", 0.5)
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))
}

func TestEnsureLiveColdStart(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)

	err := rig.sup.EnsureLive(context.Background())
	require.Error(t, err)
	assert.Equal(t, models.ErrKindNotFound, models.KindOf(err))

	require.NoError(t, rig.sup.Apply(context.Background(), pipLayout()))
	rig.sup.Stop()
	assert.Equal(t, ModeIdle, rig.sup.Mode())

	require.NoError(t, rig.sup.EnsureLive(context.Background()))
	assert.Equal(t, ModeLive, rig.sup.Mode())
	assert.Equal(t, int32(2), rig.spawns.Load())

	// already live: no extra child
	require.NoError(t, rig.sup.EnsureLive(context.Background()))
	assert.Equal(t, int32(2), rig.spawns.Load())
}

func TestCurrentBeforeAnyApply(t *testing.T) {
	rig := newRig(t, Config{IdleTimeout: time.Minute}, steady)
	assert.Nil(t, rig.sup.Current())

	_, err := rig.sup.Volumes()
	require.Error(t, err)
	assert.Equal(t, models.ErrKindNotFound, models.KindOf(err))
}

func TestScanLinesWithCR(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("frame=1\rframe=2\r\nerror: boom\nlast"))
	scanner.Split(scanLinesWithCR)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	assert.Equal(t, []string{"frame=1", "frame=2", "error: boom", "last"}, lines)
}
