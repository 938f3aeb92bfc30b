package cmd

import (
	"github.com/spf13/cobra"
)

var (
	loopDeviceIndex int
	loopStartOffset float64
)

var loopCmd = &cobra.Command{
	Use:   "loop <file>",
	Short: "Play a file on repeat until interrupted",
	Long: `loop plays a file the same way play does, except the stream is opened
in loop mode: a decoder that understands its own loop points wraps around
seamlessly at end-of-stream instead of stopping, and the offset accounting
resets to the loop start rather than growing unbounded. Send SIGINT or
SIGTERM to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runPlayback(args[0], true, loopStartOffset, loopDeviceIndex)
	},
}

func init() {
	loopCmd.Flags().IntVar(&loopDeviceIndex, "device", -1, "PortAudio output device index (-1 for default)")
	loopCmd.Flags().Float64Var(&loopStartOffset, "offset", 0, "start offset in seconds")
	rootCmd.AddCommand(loopCmd)
}
