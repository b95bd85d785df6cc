package ffmpeg

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mosaictv/mosaic/internal/models"
)

const defaultProbeTimeout = 15 * time.Second

// Prober selects a working codec profile by running short synthetic
// encodes against the profile table.
type Prober struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger

	// run executes one candidate encode; swappable in tests.
	run func(ctx context.Context, binary string, args []string) error
}

// NewProber creates a prober for the given ffmpeg binary.
func NewProber(binary string, timeout time.Duration, logger *slog.Logger) *Prober {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		binary:  binary,
		timeout: timeout,
		logger:  logger,
		run:     runProbe,
	}
}

// Probe picks the encoder profile. preference narrows the candidates:
// "auto" tries the whole table in order, "cpu" skips probing entirely,
// and a profile name tries that profile with the software fallback.
// The first candidate whose test encode succeeds wins; the software
// fallback is accepted without probing.
func (p *Prober) Probe(ctx context.Context, preference string) (Profile, error) {
	candidates, err := p.candidates(preference)
	if err != nil {
		return Profile{}, err
	}

	for _, profile := range candidates {
		if profile.Name == "cpu" {
			p.logger.Info("selected encoder profile",
				slog.String("profile", profile.Name),
				slog.String("codec", profile.Codec),
			)
			return profile, nil
		}

		probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.run(probeCtx, p.binary, probeArgs(profile))
		cancel()

		if err != nil {
			p.logger.Debug("encoder profile unavailable",
				slog.String("profile", profile.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		p.logger.Info("selected encoder profile",
			slog.String("profile", profile.Name),
			slog.String("codec", profile.Codec),
		)
		return profile, nil
	}

	return Profile{}, models.NewError(models.ErrKindEncoderFailed, "no encoder profile passed the probe")
}

func (p *Prober) candidates(preference string) ([]Profile, error) {
	all := Profiles()
	switch preference {
	case "", "auto":
		return all, nil
	case "cpu":
		cpu, _ := ProfileByName("cpu")
		return []Profile{cpu}, nil
	default:
		preferred, ok := ProfileByName(preference)
		if !ok {
			return nil, models.NewError(models.ErrKindEncoderFailed, "unknown encoder preference %q", preference)
		}
		cpu, _ := ProfileByName("cpu")
		return []Profile{preferred, cpu}, nil
	}
}

// probeArgs builds the synthetic test encode: 30 frames of a generated
// colour source into the null muxer.
func probeArgs(profile Profile) []string {
	b := NewCommandBuilder().
		Global("-hide_banner", "-loglevel", "error", "-nostdin").
		Global(profile.PreInputArgs...).
		Input("color=c=black:s=1280x720:r=30", "-f", "lavfi")

	if profile.SupportsHWFilter {
		b.FilterComplex("[0:v]" + HWFilterTail + "[v]")
		b.Map("[v]")
	}

	return b.
		OutputArgs("-frames:v", "30", "-c:v", profile.Codec).
		OutputArgs(profile.OutputArgs...).
		OutputArgs("-f", "null").
		Output("-").
		Args()
}

func runProbe(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Run()
}
