package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgolem/audiostream/internal/config"
	"github.com/drgolem/audiostream/internal/opener"
	"github.com/drgolem/audiostream/internal/sink/portaudiosink"
	"github.com/drgolem/audiostream/internal/stream"
	"github.com/drgolem/audiostream/internal/vfs"
)

var (
	playDeviceIndex int
	playStartOffset float64
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a file once and exit at end-of-stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runPlayback(args[0], false, playStartOffset, playDeviceIndex)
	},
}

func init() {
	playCmd.Flags().IntVar(&playDeviceIndex, "device", -1, "PortAudio output device index (-1 for default)")
	playCmd.Flags().Float64Var(&playStartOffset, "offset", 0, "start offset in seconds")
	rootCmd.AddCommand(playCmd)
}

// runPlayback opens path, plays it to completion (loop=false) or until
// interrupted (loop=true), and tears the stream down cleanly on either
// exit path.
func runPlayback(path string, loop bool, offset float64, deviceIndex int) error {
	cfg := config.Default()
	cfg.DeviceIndex = deviceIndex

	fs := vfs.New("")
	op := opener.New()
	sk := portaudiosink.New(cfg.DeviceIndex, cfg.FramesPerBuffer, cfg.BufferCount)

	st := stream.New(fs, op, sk, "cli", loop, cfg)
	if err := st.Open(path); err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer st.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	st.Play(offset)
	slog.Info("playback started", "file", path, "loop", loop)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			slog.Info("interrupted, stopping")
			st.Stop()
			return nil
		case <-ticker.C:
			switch st.QueryState() {
			case stream.Stopped, stream.Closed:
				slog.Info("playback finished")
				return nil
			}
		}
	}
}
