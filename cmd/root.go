package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "audiostream",
	Short: "Streaming audio playback engine",
	Long: `audiostream drives a decoder producer goroutine against a hardware mixer
buffer queue: open/play/pause/stop/close, seamless loop wrap-around, buffer
underrun recovery, and preemptive pause across startup latency.

Commands:
  - play: play a file once and exit at end-of-stream
  - loop: play a file on repeat until interrupted
  - probe: report a file's detected format, optionally previewing a resample
  - tone: play a synthetic sine wave through a live packet feed`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
