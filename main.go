package main

import (
	"context"
	"os"

	"audioscope/cmd"
	"audioscope/internal/log"
	"audioscope/pkg/build"
)

// main is the entry point for the analysis pipeline.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//
// 2. Concurrent Phase (Hot Path):
//   - Audio callback fills the sample rings
//   - Frame loop snapshots, analyses and publishes
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the frame loop, recording and device stream
//   - Close transports
func main() {
	// Initialize build information including version, commit hash, and build time
	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	if err := cmd.Execute(context.Background(), os.Args[1:]); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
