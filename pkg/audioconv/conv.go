package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Decode sniffs the container in data (wav, mp3, ogg/vorbis, ogg/opus) and
// returns mono float32 PCM resampled to targetRate.
func Decode(data []byte, targetRate int) ([]float32, error) {
	if len(data) < 4 {
		return nil, errors.New("audioconv: payload too short")
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("audioconv: invalid target rate %d", targetRate)
	}

	r := bytes.NewReader(data)
	switch {
	case string(data[:4]) == "RIFF":
		return decodeWAV(r, targetRate)
	case string(data[:4]) == "OggS":
		if s, err := decodeOggVorbis(r, targetRate); err == nil {
			return s, nil
		}
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		s, err := decodeOggOpus(r, targetRate)
		if err != nil {
			return nil, fmt.Errorf("audioconv: ogg is neither vorbis nor opus: %w", err)
		}
		return s, nil
	case string(data[:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0):
		return decodeMP3(r, targetRate)
	default:
		return nil, fmt.Errorf("audioconv: unsupported format (magic % x)", data[:4])
	}
}

func decodeWAV(r io.ReadSeeker, targetRate int) ([]float32, error) {
	samples, sr, ch, bd, err := readWAV(r)
	if err != nil {
		return nil, err
	}
	x := intSliceToFloat32(samples, bd)
	if ch > 1 {
		x = downmixInterleaved(x, ch)
	}
	return resampleLinear(x, sr, targetRate), nil
}

func decodeMP3(r io.Reader, targetRate int) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always emits interleaved stereo
	x := downmixInterleaved(int16SliceToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return resampleLinear(x, sr, targetRate), nil
}

func decodeOggVorbis(r io.Reader, targetRate int) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = downmixInterleaved(pcm, format.Channels)
	}
	return resampleLinear(x, format.SampleRate, targetRate), nil
}

func decodeOggOpus(rs io.ReadSeeker, targetRate int) ([]float32, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // samples per channel
		if n > 0 {
			pcm48 = append(pcm48, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm48) == 0 {
		return nil, nil
	}
	if ch > 1 {
		pcm48 = downmixInterleaved(pcm48, ch)
	}
	// opus always decodes at 48 kHz
	return resampleLinear(pcm48, 48000, targetRate), nil
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts mono samples from inSR to outSR by linear interpolation.
func Resample(in []float32, inSR, outSR int) []float32 {
	return resampleLinear(in, inSR, outSR)
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
