package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"iris/internal/fault"
	"iris/pkg/audioconv"
	"iris/pkg/pcm"
)

// whisperRate is the only sample rate whisper.cpp accepts.
const whisperRate = 16000

type Options struct {
	Language        string // e.g. "auto", "en", "ru"
	TranslateToEn   bool
	Threads         int // <=0 => NumCPU()
	InitialPrompt   string
	MaxTokens       uint // 0 = no limit
	BeamSize        int  // 0 = greedy
	SplitOnWord     bool
	Temperature     float32
	TemperatureStep float32
}

// Whisper runs a whisper.cpp model in-process.
type Whisper struct {
	mu    sync.Mutex
	model whisper.Model
	opt   Options
}

var _ Transcriber = (*Whisper)(nil)

func NewWhisper(modelPath string, opt Options) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("stt: empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load model: %w", err)
	}
	return &Whisper{model: m, opt: opt}, nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	return w.model.Close()
}

func (w *Whisper) Transcribe(ctx context.Context, u *pcm.Utterance) (Result, error) {
	if u.Empty() {
		return Result{}, nil
	}
	samples := pcm.ToFloat32(u.Samples())
	if u.SampleRate != whisperRate {
		samples = audioconv.Resample(samples, u.SampleRate, whisperRate)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	res, err := w.transcribePCM(ctx, samples)
	if err != nil {
		return Result{}, fault.New(fault.TranscriptionFailed, "stt.whisper", err)
	}
	return res, nil
}

// transcribePCM takes mono 16 kHz samples in [-1, 1].
func (w *Whisper) transcribePCM(ctx context.Context, pcm16k []float32) (Result, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	opt := w.opt
	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(opt.TranslateToEn)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.SplitOnWord {
		wctx.SetSplitOnWord(true)
	}
	if opt.MaxTokens > 0 {
		wctx.SetMaxTokensPerSegment(opt.MaxTokens)
	}
	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}
	if opt.TemperatureStep != 0 {
		wctx.SetTemperatureFallback(opt.TemperatureStep)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		texts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		texts = append(texts, strings.TrimSpace(s.Text))
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}
	return Result{
		Text:     strings.TrimSpace(strings.Join(texts, " ")),
		Segments: segs,
		Language: lang,
	}, nil
}
