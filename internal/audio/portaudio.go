package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// PortAudio captures from a portaudio input device. An empty DeviceName
// selects the host default.
type PortAudio struct {
	DeviceName string
}

var _ Driver = (*PortAudio)(nil)

func (p *PortAudio) Init() error {
	return portaudio.Initialize()
}

func (p *PortAudio) Close() {
	portaudio.Terminate()
}

// Probe checks that the configured input device exists.
func (p *PortAudio) Probe() error {
	dev, err := p.inputDevice()
	if err != nil {
		return err
	}
	slog.Info("Input device", "name", dev.Name, "default_rate", dev.DefaultSampleRate)
	return nil
}

func (p *PortAudio) inputDevice() (*portaudio.DeviceInfo, error) {
	if p.DeviceName == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	want := strings.ToLower(p.DeviceName)
	for _, d := range devs {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", p.DeviceName)
}

func (p *PortAudio) OpenInput(sampleRate, frameLength int) (InputStream, error) {
	dev, err := p.inputDevice()
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frameLength

	buf := make([]int16, frameLength)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}

	return &paStream{stream: stream, buf: buf}, nil
}

type paStream struct {
	stream *portaudio.Stream
	buf    []int16
}

func (s *paStream) Read(dst []int16) error {
	if err := s.stream.Read(); err != nil {
		// the buffer still holds a full frame after an overflow
		if !errors.Is(err, portaudio.InputOverflowed) {
			return err
		}
		slog.Debug("input overflowed")
	}
	copy(dst, s.buf)
	return nil
}

func (s *paStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	return errors.Join(stopErr, closeErr)
}
