package ffmpeg

// Profile is one codec configuration from the fixed probe table.
// Selected once at startup, immutable thereafter.
type Profile struct {
	// Name identifies the profile ("nvenc", "qsv", "vaapi", "cpu").
	Name string `json:"name"`

	// Codec is the encoder passed to -c:v.
	Codec string `json:"codec"`

	// PreInputArgs are inserted before the first input, e.g. device
	// selection for hardware encoders.
	PreInputArgs []string `json:"-"`

	// OutputArgs are the encoder's rate-control and format arguments.
	OutputArgs []string `json:"-"`

	// SupportsHWFilter marks profiles whose frames must be uploaded to
	// the hardware device at the end of the video filter chain.
	SupportsHWFilter bool `json:"-"`
}

// HWFilterTail is appended to the video chain for profiles that encode
// on-device.
const HWFilterTail = "format=nv12,hwupload"

// Profiles returns the probe candidates in fixed priority order. The
// last entry is the software fallback.
func Profiles() []Profile {
	return []Profile{
		{
			Name:  "nvenc",
			Codec: "h264_nvenc",
			OutputArgs: []string{
				"-preset", "p5",
				"-rc", "vbr",
				"-b:v", "6000k",
				"-maxrate", "6500k",
				"-bufsize", "12M",
				"-spatial_aq", "1",
				"-aq-strength", "8",
				"-pix_fmt", "yuv420p",
				"-r", "30",
				"-g", "60",
			},
		},
		{
			Name:  "qsv",
			Codec: "h264_qsv",
			OutputArgs: []string{
				"-preset", "veryfast",
				"-b:v", "6000k",
				"-maxrate", "6500k",
				"-bufsize", "12M",
				"-pix_fmt", "yuv420p",
				"-r", "30",
				"-g", "60",
			},
		},
		{
			Name:  "vaapi",
			Codec: "h264_vaapi",
			PreInputArgs: []string{
				"-vaapi_device", "/dev/dri/renderD128",
			},
			OutputArgs: []string{
				"-b:v", "6000k",
				"-maxrate", "6500k",
				"-bufsize", "12M",
				"-r", "30",
				"-g", "60",
			},
			SupportsHWFilter: true,
		},
		{
			Name:  "cpu",
			Codec: "libx264",
			OutputArgs: []string{
				"-preset", "veryfast",
				"-tune", "zerolatency",
				"-b:v", "6000k",
				"-maxrate", "6500k",
				"-bufsize", "12M",
				"-pix_fmt", "yuv420p",
				"-r", "30",
				"-g", "60",
			},
		},
	}
}

// ProfileByName returns the named profile from the table.
func ProfileByName(name string) (Profile, bool) {
	for _, p := range Profiles() {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// AudioOutputArgs are the audio encoding arguments shared by every profile.
func AudioOutputArgs() []string {
	return []string{
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "48000",
		"-ac", "2",
	}
}

// MuxArgs are the container arguments for the MPEG-TS output.
func MuxArgs() []string {
	return []string{
		"-fflags", "+genpts",
		"-flags", "low_delay",
		"-f", "mpegts",
	}
}
