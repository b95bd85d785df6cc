package compositor

import (
	"sort"
	"strings"

	"github.com/mosaictv/mosaic/internal/ffmpeg"
	"github.com/mosaictv/mosaic/internal/models"
)

// silentSource is the lavfi source appended when the audio mix path
// needs a guaranteed silent stream.
const silentSource = "anullsrc=channel_layout=stereo:sample_rate=48000"

// Compiler turns layouts into complete encoder argument vectors for the
// selected profile. For identical inputs the output is byte-identical.
type Compiler struct {
	profile   ffmpeg.Profile
	userAgent string
	headerArg string
}

// New creates a compiler bound to an encoder profile.
func New(profile ffmpeg.Profile, userAgent string) *Compiler {
	return &Compiler{profile: profile, userAgent: userAgent}
}

// WithHeaders sets extra headers forwarded to upstream servers on every
// network input. Headers are serialised in sorted key order so the
// argument vector stays deterministic.
func (c *Compiler) WithHeaders(headers map[string]string) *Compiler {
	if len(headers) == 0 {
		return c
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(headers[k])
		b.WriteString("\r\n")
	}
	c.headerArg = b.String()
	return c
}

// Profile returns the compiler's encoder profile.
func (c *Compiler) Profile() ffmpeg.Profile {
	return c.profile
}

// Compile validates the layout and produces the argument vector. urls
// maps each assigned slot to its resolved stream URL. The input layout
// is not mutated; volumes are clamped on a working copy.
func (c *Compiler) Compile(layout *models.LayoutConfig, urls map[string]string) ([]string, error) {
	if err := Validate(layout); err != nil {
		return nil, err
	}

	work := layout.Clone()
	work.Normalize()

	order := SlotOrder(work)
	inputs := make([]string, len(order))
	for i, slot := range order {
		url, ok := urls[slot]
		if !ok || url == "" {
			return nil, models.NewError(models.ErrKindBadLayout, "slot %q has no resolved stream URL", slot)
		}
		inputs[i] = url
	}

	videoOut := "v"
	if c.profile.SupportsHWFilter {
		videoOut = "vc"
	}

	chains := videoGraph(work, order, videoOut)
	if c.profile.SupportsHWFilter {
		chains = append(chains, "[vc]"+ffmpeg.HWFilterTail+"[v]")
	}

	audioChains, needSilence := audioGraph(work, order)
	chains = append(chains, audioChains...)

	b := ffmpeg.NewCommandBuilder().
		Global("-loglevel", "warning", "-hide_banner", "-nostdin").
		Global(c.profile.PreInputArgs...)

	for _, url := range inputs {
		b.Input(url, c.inputArgs(url)...)
	}
	if needSilence {
		b.Input(silentSource, "-f", "lavfi")
	}

	return b.
		FilterComplex(strings.Join(chains, ";")).
		Map("[v]").
		Map("[a]").
		OutputArgs("-c:v", c.profile.Codec).
		OutputArgs(c.profile.OutputArgs...).
		OutputArgs(ffmpeg.AudioOutputArgs()...).
		OutputArgs(ffmpeg.MuxArgs()...).
		Output("pipe:1").
		Args(), nil
}

// inputArgs returns the per-input block. Network inputs get reconnection
// and socket timeout settings; everything else only gets queue sizing.
func (c *Compiler) inputArgs(url string) []string {
	args := []string{"-thread_queue_size", "1024"}

	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if c.userAgent != "" {
			args = append(args, "-user_agent", c.userAgent)
		}
		if c.headerArg != "" {
			args = append(args, "-headers", c.headerArg)
		}
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_on_network_error", "1",
			"-rw_timeout", "15000000",
			"-timeout", "15000000",
		)
	}
	return args
}
