package audioconv

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavFormatPCM is the RIFF format tag for uncompressed integer PCM.
const wavFormatPCM = 1

// EncodeWAV writes samples as a mono 16-bit PCM WAV container.
func EncodeWAV(w io.WriteSeeker, samples []int16, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("audioconv: invalid sample rate %d", sampleRate)
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audioconv: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audioconv: close wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a 16-bit mono WAV container back into samples.
func DecodeWAV(r io.ReadSeeker) ([]int16, int, error) {
	data, sr, ch, bd, err := readWAV(r)
	if err != nil {
		return nil, 0, err
	}
	if ch != 1 || bd != 16 {
		return nil, 0, fmt.Errorf("audioconv: want mono 16-bit wav, got %d ch %d bit", ch, bd)
	}
	out := make([]int16, len(data))
	for i, v := range data {
		out[i] = int16(v)
	}
	return out, sr, nil
}

func readWAV(r io.ReadSeeker) (data []int, sampleRate, channels, bitDepth int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, 0, errors.New("audioconv: invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("audioconv: read wav: %w", err)
	}
	if pb == nil {
		return nil, 0, 0, 0, errors.New("audioconv: empty wav")
	}

	bitDepth = int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	channels, sampleRate = 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sampleRate = pb.Format.SampleRate
		}
	}
	return pb.Data, sampleRate, channels, bitDepth, nil
}
