package audio

import (
	"fmt"
	"io"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Indirections over the PortAudio package so device resolution can be
// tested without hardware.
var (
	paLibInitialize              = portaudio.Initialize
	paLibTerminate               = portaudio.Terminate
	paLibDevicesFunc             = portaudio.Devices
	paLibDefaultInputDeviceFunc  = portaudio.DefaultInputDevice
	paLibDefaultOutputDeviceFunc = portaudio.DefaultOutputDevice
	paOpenStreamFunc             = func(p portaudio.StreamParameters, cb any) (Stream, error) {
		s, err := portaudio.OpenStream(p, cb)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// Initialize sets up the PortAudio subsystem. Pair it with Terminate.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// paDevices never returns a nil slice without an error.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		return []*portaudio.DeviceInfo{}, nil
	}
	return devices, nil
}

// PortAudio is the Backend used outside of tests. The caller owns the
// library lifetime through Initialize and Terminate.
type PortAudio struct{}

func NewPortAudio() *PortAudio { return &PortAudio{} }

func (PortAudio) Devices() ([]Device, error) {
	infos, err := paDevices()
	if err != nil {
		return nil, err
	}
	defIn, _ := paLibDefaultInputDeviceFunc()
	defOut, _ := paLibDefaultOutputDeviceFunc()

	devices := make([]Device, len(infos))
	for i, info := range infos {
		d := Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			DefaultInput:      defIn != nil && sameDevice(info, defIn),
			DefaultOutput:     defOut != nil && sameDevice(info, defOut),
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		if info.MaxInputChannels > 0 {
			d.LowLatency, d.HighLatency = info.DefaultLowInputLatency, info.DefaultHighInputLatency
		} else {
			d.LowLatency, d.HighLatency = info.DefaultLowOutputLatency, info.DefaultHighOutputLatency
		}
		devices[i] = d
	}
	return devices, nil
}

func sameDevice(a, b *portaudio.DeviceInfo) bool {
	return a == b || (a.Name == b.Name && a.Index == b.Index)
}

// resolveDevice finds a device by name for the given direction. An empty
// name selects the host default. Exact matches win over case-insensitive
// substring matches.
func resolveDevice(name string, capture bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if capture {
			return paLibDefaultInputDeviceFunc()
		}
		return paLibDefaultOutputDeviceFunc()
	}

	devices, err := paDevices()
	if err != nil {
		return nil, err
	}
	usable := func(d *portaudio.DeviceInfo) bool {
		if capture {
			return d.MaxInputChannels > 0
		}
		return d.MaxOutputChannels > 0
	}

	for _, d := range devices {
		if d.Name == name && usable(d) {
			return d, nil
		}
	}
	lower := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), lower) && usable(d) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

func (PortAudio) OpenPlayback(cfg StreamConfig, fill func(out []float32)) (Stream, error) {
	dev, err := resolveDevice(cfg.Device, false)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(nil, dev)
	if !cfg.LowLatency {
		params = portaudio.HighLatencyParameters(nil, dev)
	}
	params.Output.Channels = cfg.Channels
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.FramesPerBuffer
	return paOpenStreamFunc(params, fill)
}

func (PortAudio) OpenCapture(cfg StreamConfig, consume func(in []float32)) (Stream, error) {
	dev, err := resolveDevice(cfg.Device, true)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	if !cfg.LowLatency {
		params = portaudio.HighLatencyParameters(dev, nil)
	}
	params.Input.Channels = min(cfg.Channels, max(dev.MaxInputChannels, 1))
	params.SampleRate = cfg.SampleRate
	params.FramesPerBuffer = cfg.FramesPerBuffer
	channels := params.Input.Channels
	if channels == cfg.Channels {
		return paOpenStreamFunc(params, consume)
	}
	// A mono-only device still feeds a stereo consumer.
	return paOpenStreamFunc(params, widen(channels, cfg.Channels, max(cfg.FramesPerBuffer, 8192), consume))
}

// widen returns a callback that replicates the last input channel up to
// outChannels. Blocks longer than maxFrames are delivered in pieces.
func widen(channels, outChannels, maxFrames int, consume func([]float32)) func([]float32) {
	widened := make([]float32, maxFrames*outChannels)
	return func(in []float32) {
		frames := len(in) / channels
		for start := 0; start < frames; start += maxFrames {
			n := min(maxFrames, frames-start)
			out := widened[:n*outChannels]
			src := in[start*channels:]
			for i := 0; i < n; i++ {
				for c := 0; c < outChannels; c++ {
					out[i*outChannels+c] = src[i*channels+min(c, channels-1)]
				}
			}
			consume(out)
		}
	}
}

// ListDevices prints every device with its direction, channel counts,
// default rate and latency range.
func ListDevices(w io.Writer, b Backend) error {
	devices, err := b.Devices()
	if err != nil {
		return err
	}
	PrintDevices(w, devices)
	return nil
}

// PrintDevices writes the listing for an already enumerated device set.
func PrintDevices(w io.Writer, devices []Device) {
	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")
	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio devices found.")
		return
	}
	for _, d := range devices {
		marker := ""
		switch {
		case d.DefaultInput && d.DefaultOutput:
			marker = " [default in/out]"
		case d.DefaultInput:
			marker = " [default in]"
		case d.DefaultOutput:
			marker = " [default out]"
		}
		fmt.Fprintf(w, "[%d] %s (%s)%s\n", d.ID, d.Name, d.Kind(), marker)
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			d.LowLatency.Seconds()*1000, d.HighLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}
}
