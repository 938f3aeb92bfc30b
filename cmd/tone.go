package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/drgolem/audiostream/internal/config"
	"github.com/drgolem/audiostream/internal/opener"
	"github.com/drgolem/audiostream/internal/sink/portaudiosink"
	"github.com/drgolem/audiostream/internal/source/packetsource"
	"github.com/drgolem/audiostream/internal/stream"
	"github.com/drgolem/audiostream/internal/vfs"
)

var (
	toneDeviceIndex int
	toneFrequency   float64
	toneDuration    time.Duration
)

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Play a synthetic sine wave through a live packet feed",
	Long: `tone plays a generated sine wave instead of a decoded file, exercising
the stream driver's packetsource.DataSource: a provider that hands over
already-decoded PCM directly rather than a container format, the same shape
a live network audio feed would use.`,
	RunE: runTone,
}

func init() {
	toneCmd.Flags().IntVar(&toneDeviceIndex, "device", -1, "PortAudio output device index (-1 for default)")
	toneCmd.Flags().Float64Var(&toneFrequency, "freq", 440, "tone frequency in Hz")
	toneCmd.Flags().DurationVar(&toneDuration, "duration", 3*time.Second, "how long to play")
	rootCmd.AddCommand(toneCmd)
}

func runTone(c *cobra.Command, args []string) error {
	cfg := config.Default()
	cfg.DeviceIndex = toneDeviceIndex

	sk := portaudiosink.New(cfg.DeviceIndex, cfg.FramesPerBuffer, cfg.BufferCount)
	st := stream.New(vfs.New(""), opener.New(), sk, "tone", false, cfg)

	const rate = 44100
	const channels = 2
	totalSamples := int(toneDuration.Seconds() * rate)
	provider := newSineProvider(rate, channels, toneFrequency, totalSamples)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := packetsource.New(ctx, sk, provider, packetsource.Format{
		SampleRate:     rate,
		Channels:       channels,
		BytesPerSample: 2,
	})
	if err := st.OpenSource(src); err != nil {
		return fmt.Errorf("open tone source: %w", err)
	}
	defer st.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	st.Play(0)
	slog.Info("tone playback started", "freq", toneFrequency, "duration", toneDuration)

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
				slog.Info("tone playback finished")
				return nil
			}
		}
	}
}

// sineProvider is a packetsource.Provider generating a fixed-frequency sine
// wave for totalSamples frames, then reporting end of feed.
type sineProvider struct {
	rate, channels int
	freq           float64
	amplitude      float64

	remaining int
	phase     float64
}

func newSineProvider(rate, channels int, freq float64, totalSamples int) *sineProvider {
	return &sineProvider{
		rate:      rate,
		channels:  channels,
		freq:      freq,
		amplitude: 0.2 * 32767,
		remaining: totalSamples,
	}
}

func (p *sineProvider) ReadPacket(ctx context.Context, samples int) (*packetsource.Packet, error) {
	format := packetsource.Format{SampleRate: p.rate, Channels: p.channels, BytesPerSample: 2}

	if p.remaining <= 0 {
		return &packetsource.Packet{Format: format}, nil
	}
	if samples > p.remaining {
		samples = p.remaining
	}
	p.remaining -= samples

	bytesPerFrame := p.channels * 2
	buf := make([]byte, samples*bytesPerFrame)
	step := 2 * math.Pi * p.freq / float64(p.rate)
	for i := 0; i < samples; i++ {
		v := int16(p.amplitude * math.Sin(p.phase))
		p.phase += step
		for ch := 0; ch < p.channels; ch++ {
			off := (i*p.channels + ch) * 2
			buf[off] = byte(v)
			buf[off+1] = byte(v >> 8)
		}
	}

	return &packetsource.Packet{Audio: buf, SamplesCount: samples, Format: format}, nil
}
