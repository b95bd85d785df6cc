// Package main is the entry point for the mosaic service.
package main

import (
	"os"

	"github.com/mosaictv/mosaic/cmd/mosaic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
