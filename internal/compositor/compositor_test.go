package compositor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaictv/mosaic/internal/ffmpeg"
	"github.com/mosaictv/mosaic/internal/models"
)

func cpuCompiler(t *testing.T) *Compiler {
	t.Helper()
	profile, ok := ffmpeg.ProfileByName("cpu")
	require.True(t, ok)
	return New(profile, "mosaic/test")
}

func pipLayout() *models.LayoutConfig {
	return &models.LayoutConfig{
		Kind:      models.LayoutPiP,
		Streams:   map[string]string{"main": "A", "inset": "B"},
		AudioSlot: "main",
	}
}

func pipURLs() map[string]string {
	return map[string]string{
		"main":  "http://upstream/a",
		"inset": "http://upstream/b",
	}
}

func filterGraph(t *testing.T, args []string) string {
	t.Helper()
	for i, a := range args {
		if a == "-filter_complex" {
			require.Less(t, i+1, len(args))
			return args[i+1]
		}
	}
	t.Fatal("no -filter_complex in args")
	return ""
}

func inputURLs(args []string) []string {
	var urls []string
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			urls = append(urls, args[i+1])
		}
	}
	return urls
}

func TestCompileDeterminism(t *testing.T) {
	layouts := map[string]struct {
		layout *models.LayoutConfig
		urls   map[string]string
	}{
		"pip": {pipLayout(), pipURLs()},
		"grid": {
			&models.LayoutConfig{
				Kind: models.LayoutGrid2x2,
				Streams: map[string]string{
					"slot1": "A", "slot2": "B", "slot3": "C", "slot4": "D",
				},
				AudioSlot: "slot2",
				Volumes:   map[string]float64{"slot2": 0.8, "slot4": 0.3},
			},
			map[string]string{
				"slot1": "http://u/1", "slot2": "http://u/2",
				"slot3": "http://u/3", "slot4": "http://u/4",
			},
		},
		"custom": {
			&models.LayoutConfig{
				Kind:      models.LayoutCustom,
				Streams:   map[string]string{"big": "A", "small": "B"},
				AudioSlot: "big",
				CustomSlots: []models.CustomSlot{
					{ID: "small", X: 1440, Y: 780, Width: 320, Height: 180},
					{ID: "big", X: 0, Y: 0, Width: 1920, Height: 1080},
				},
			},
			map[string]string{"big": "http://u/big", "small": "http://u/small"},
		},
	}

	c := cpuCompiler(t)
	for name, tc := range layouts {
		t.Run(name, func(t *testing.T) {
			first, err := c.Compile(tc.layout, tc.urls)
			require.NoError(t, err)
			second, err := c.Compile(tc.layout, tc.urls)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCompileInputOrderCanonical(t *testing.T) {
	c := cpuCompiler(t)

	args, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://upstream/a", "http://upstream/b"}, inputURLs(args),
		"main before inset, matching canonical slot order")
}

func TestCompileInputOrderCustomAreaDescending(t *testing.T) {
	c := cpuCompiler(t)

	layout := &models.LayoutConfig{
		Kind:      models.LayoutCustom,
		Streams:   map[string]string{"big": "A", "small": "B"},
		AudioSlot: "big",
		CustomSlots: []models.CustomSlot{
			// declared smallest-first to prove sorting is by area
			{ID: "small", X: 1440, Y: 780, Width: 320, Height: 180},
			{ID: "big", X: 0, Y: 0, Width: 1920, Height: 1080},
		},
	}
	urls := map[string]string{"big": "http://u/big", "small": "http://u/small"}

	args, err := c.Compile(layout, urls)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://u/big", "http://u/small"}, inputURLs(args))

	graph := filterGraph(t, args)
	assert.Contains(t, graph, "overlay=1440:780", "small slot overlays at its geometry")
}

func TestCompileVolumeClamping(t *testing.T) {
	c := cpuCompiler(t)

	layout := pipLayout()
	layout.Volumes = map[string]float64{"main": -3.5, "inset": 42}

	args, err := c.Compile(layout, pipURLs())
	require.NoError(t, err)
	graph := filterGraph(t, args)

	assert.Contains(t, graph, "volume=0.00")
	assert.Contains(t, graph, "volume=1.00")
	assert.NotContains(t, graph, "volume=-")
	assert.NotContains(t, graph, "volume=42")
}

func TestCompileDoesNotMutateLayout(t *testing.T) {
	c := cpuCompiler(t)

	layout := pipLayout()
	layout.Volumes = map[string]float64{"inset": 9.0}

	_, err := c.Compile(layout, pipURLs())
	require.NoError(t, err)

	assert.Equal(t, 9.0, layout.Volumes["inset"], "caller's layout stays untouched")
	_, hasMain := layout.Volumes["main"]
	assert.False(t, hasMain)
}

func TestValidateAspectTolerance(t *testing.T) {
	slot := func(w, h int) models.CustomSlot {
		return models.CustomSlot{ID: "s", X: 0, Y: 0, Width: w, Height: h}
	}

	tests := []struct {
		w, h int
		ok   bool
	}{
		{320, 180, true},
		{1920, 1080, true},
		{640, 360, true},
		{646, 360, true},  // within 1%
		{648, 360, false}, // 1.8:1, past tolerance
		{600, 360, false},
		{320, 200, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.w, tt.h), func(t *testing.T) {
			err := validateGeometry(slot(tt.w, tt.h))
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, models.ErrKindBadGeometry, models.KindOf(err))
			}
		})
	}
}

func TestValidateBadGeometry(t *testing.T) {
	tests := map[string]models.CustomSlot{
		"width too small":  {ID: "s", Width: 319, Height: 180},
		"off right edge":   {ID: "s", X: 1700, Width: 320, Height: 180},
		"off bottom edge":  {ID: "s", Y: 1000, Width: 320, Height: 180},
		"negative origin":  {ID: "s", X: -10, Width: 320, Height: 180},
		"height too large": {ID: "s", Width: 1920, Height: 1081},
	}
	for name, slot := range tests {
		t.Run(name, func(t *testing.T) {
			err := validateGeometry(slot)
			require.Error(t, err)
			assert.Equal(t, models.ErrKindBadGeometry, models.KindOf(err))
		})
	}
}

func TestValidateBadLayouts(t *testing.T) {
	tests := map[string]*models.LayoutConfig{
		"unknown kind": {
			Kind:      "mosaic_9x9",
			Streams:   map[string]string{"a": "A"},
			AudioSlot: "a",
		},
		"no streams": {
			Kind:      models.LayoutPiP,
			AudioSlot: "main",
		},
		"grid missing slots": {
			Kind:      models.LayoutGrid2x2,
			Streams:   map[string]string{"slot1": "A"},
			AudioSlot: "slot1",
		},
		"slot outside kind": {
			Kind:      models.LayoutPiP,
			Streams:   map[string]string{"main": "A", "sidecar": "B"},
			AudioSlot: "main",
		},
		"audio slot unassigned": {
			Kind:      models.LayoutPiP,
			Streams:   map[string]string{"main": "A", "inset": "B"},
			AudioSlot: "slot9",
		},
		"custom without slots": {
			Kind:      models.LayoutCustom,
			Streams:   map[string]string{"a": "A"},
			AudioSlot: "a",
		},
		"custom duplicate ids": {
			Kind:      models.LayoutCustom,
			Streams:   map[string]string{"a": "A"},
			AudioSlot: "a",
			CustomSlots: []models.CustomSlot{
				{ID: "a", Width: 320, Height: 180},
				{ID: "a", X: 400, Width: 320, Height: 180},
			},
		},
		"custom stream for unknown slot": {
			Kind:      models.LayoutCustom,
			Streams:   map[string]string{"a": "A", "ghost": "B"},
			AudioSlot: "a",
			CustomSlots: []models.CustomSlot{
				{ID: "a", Width: 320, Height: 180},
			},
		},
	}

	for name, layout := range tests {
		t.Run(name, func(t *testing.T) {
			err := Validate(layout)
			require.Error(t, err)
			assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))
		})
	}
}

func TestCompilePiP(t *testing.T) {
	c := cpuCompiler(t)
	args, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.True(t, strings.HasPrefix(joined, "-loglevel warning -hide_banner -nostdin"))
	assert.Contains(t, joined, "-user_agent mosaic/test")
	assert.Contains(t, joined, "-reconnect 1")
	assert.Contains(t, joined, "-rw_timeout 15000000")
	assert.Contains(t, joined, "-map [v] -map [a]")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-f mpegts")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	graph := filterGraph(t, args)
	assert.Contains(t, graph, "scale=1920:1080:force_original_aspect_ratio=decrease")
	assert.Contains(t, graph, "scale=640:360:force_original_aspect_ratio=decrease")
	assert.Contains(t, graph, "pad=iw+16:ih+16:8:8:color=white")
	assert.Contains(t, graph, "overlay=W-w-40:H-h-40:shortest=1[v]")
}

func TestCompileSplitAndGrid(t *testing.T) {
	c := cpuCompiler(t)

	splitH := &models.LayoutConfig{
		Kind:      models.LayoutSplitH,
		Streams:   map[string]string{"left": "A", "right": "B"},
		AudioSlot: "left",
	}
	args, err := c.Compile(splitH, map[string]string{"left": "http://u/l", "right": "http://u/r"})
	require.NoError(t, err)
	graph := filterGraph(t, args)
	assert.Contains(t, graph, "color=c=black:s=1920x1080:r=30")
	assert.Contains(t, graph, "scale=960:1080")
	assert.Contains(t, graph, "overlay=960:0[v]")

	splitV := &models.LayoutConfig{
		Kind:      models.LayoutSplitV,
		Streams:   map[string]string{"top": "A", "bottom": "B"},
		AudioSlot: "top",
	}
	args, err = c.Compile(splitV, map[string]string{"top": "http://u/t", "bottom": "http://u/b"})
	require.NoError(t, err)
	graph = filterGraph(t, args)
	assert.Contains(t, graph, "scale=1920:540")
	assert.Contains(t, graph, "overlay=0:540[v]")

	grid := &models.LayoutConfig{
		Kind: models.LayoutGrid2x2,
		Streams: map[string]string{
			"slot1": "A", "slot2": "B", "slot3": "C", "slot4": "D",
		},
		AudioSlot: "slot1",
	}
	args, err = c.Compile(grid, map[string]string{
		"slot1": "http://u/1", "slot2": "http://u/2",
		"slot3": "http://u/3", "slot4": "http://u/4",
	})
	require.NoError(t, err)
	graph = filterGraph(t, args)
	assert.Contains(t, graph, "scale=960:540")
	for _, pos := range []string{"overlay=0:0:shortest=1", "overlay=960:0", "overlay=0:540", "overlay=960:540[v]"} {
		assert.Contains(t, graph, pos)
	}
}

func TestCompileMultiPiPPositions(t *testing.T) {
	c := cpuCompiler(t)

	layout := &models.LayoutConfig{
		Kind: models.LayoutMultiPiP3,
		Streams: map[string]string{
			"main": "A", "inset1": "B", "inset2": "C", "inset3": "D",
		},
		AudioSlot: "main",
	}
	urls := map[string]string{
		"main": "http://u/m", "inset1": "http://u/1",
		"inset2": "http://u/2", "inset3": "http://u/3",
	}

	args, err := c.Compile(layout, urls)
	require.NoError(t, err)
	graph := filterGraph(t, args)

	// boxed insets are 392x224; rightmost at x=1488, then left in
	// steps of 412, all on the bottom margin line y=816
	assert.Contains(t, graph, "pad=392:224:4:4:color=white")
	assert.Contains(t, graph, "overlay=1488:816:shortest=1")
	assert.Contains(t, graph, "overlay=1076:816")
	assert.Contains(t, graph, "overlay=664:816[v]")
}

func TestCompileDVDBounce(t *testing.T) {
	c := cpuCompiler(t)

	layout := &models.LayoutConfig{
		Kind:      models.LayoutDVDPiP,
		Streams:   map[string]string{"main": "A", "inset": "B"},
		AudioSlot: "main",
	}
	args, err := c.Compile(layout, map[string]string{"main": "http://u/m", "inset": "http://u/i"})
	require.NoError(t, err)
	graph := filterGraph(t, args)

	assert.Contains(t, graph, "scale=480:270")
	assert.Contains(t, graph, "overlay=x='abs(mod(t*120,2*(W-w))-(W-w))':y='abs(mod(t*120,2*(H-h))-(H-h))':shortest=1[v]")
}

func TestCompileAudioSinglePath(t *testing.T) {
	c := cpuCompiler(t)

	args, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)
	graph := filterGraph(t, args)

	assert.Contains(t, graph, "aresample=async=1:first_pts=0,volume=1.00[a]")
	assert.NotContains(t, graph, "amix")
	assert.NotContains(t, strings.Join(args, " "), silentSource,
		"no silent input on the single-stream path")
}

func TestCompileAudioMixPath(t *testing.T) {
	c := cpuCompiler(t)

	layout := pipLayout()
	layout.Volumes = map[string]float64{"main": 1.0, "inset": 0.5}

	args, err := c.Compile(layout, pipURLs())
	require.NoError(t, err)
	graph := filterGraph(t, args)

	assert.Contains(t, graph, "volume=1.00[a0]")
	assert.Contains(t, graph, "volume=0.50[a1]")
	assert.Contains(t, graph, "amix=inputs=3:duration=first:normalize=0[a]")

	urls := inputURLs(args)
	require.Len(t, urls, 3)
	assert.Equal(t, silentSource, urls[2], "silent source appended after slot inputs")
}

func TestCompileVAAPIHardwareTail(t *testing.T) {
	profile, ok := ffmpeg.ProfileByName("vaapi")
	require.True(t, ok)
	c := New(profile, "mosaic/test")

	args, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-vaapi_device /dev/dri/renderD128")
	assert.Contains(t, filterGraph(t, args), "[vc]format=nv12,hwupload[v]")
	assert.Contains(t, joined, "-c:v h264_vaapi")
}

func TestCompileUnresolvedSlot(t *testing.T) {
	c := cpuCompiler(t)

	_, err := c.Compile(pipLayout(), map[string]string{"main": "http://u/a"})
	require.Error(t, err)
	assert.Equal(t, models.ErrKindBadLayout, models.KindOf(err))
}

func TestCompileLocalFileInputSkipsReconnect(t *testing.T) {
	c := cpuCompiler(t)

	args, err := c.Compile(pipLayout(), map[string]string{
		"main":  "/srv/media/loop.ts",
		"inset": "http://upstream/b",
	})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	idx := strings.Index(joined, "-i /srv/media/loop.ts")
	require.Greater(t, idx, 0)
	assert.NotContains(t, joined[:idx], "-reconnect",
		"file input carries no reconnection flags")
}

func TestCompileExtraHeadersSorted(t *testing.T) {
	c := cpuCompiler(t).WithHeaders(map[string]string{
		"X-Token": "abc",
		"Referer": "http://portal",
	})

	args, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-headers Referer: http://portal\r\nX-Token: abc\r\n")

	again, err := c.Compile(pipLayout(), pipURLs())
	require.NoError(t, err)
	assert.Equal(t, args, again)
}
