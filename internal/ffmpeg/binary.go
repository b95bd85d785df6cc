// Package ffmpeg locates the encoder binary, declares the codec profile
// table, probes for a working profile at startup, and assembles command
// argument vectors.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// BinaryEnvVar overrides binary auto-detection when set.
const BinaryEnvVar = "MOSAIC_FFMPEG_PATH"

// FindBinary locates the ffmpeg executable. Search order:
//
//  1. explicit configured path (if non-empty)
//  2. the MOSAIC_FFMPEG_PATH environment variable
//  3. ./ffmpeg (useful during development)
//  4. ffmpeg on PATH
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("configured ffmpeg binary %s is not executable", configured)
	}

	if envPath := os.Getenv(BinaryEnvVar); envPath != "" {
		if isExecutable(envPath) {
			return envPath, nil
		}
	}

	if isExecutable("./ffmpeg") {
		return "./ffmpeg", nil
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("ffmpeg binary not found")
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
