package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/afero"

	"iris/internal/audio"
	"iris/internal/bus"
	"iris/internal/config"
	"iris/internal/dialogue"
	"iris/internal/notify"
	"iris/internal/observe"
	"iris/internal/proxy"
	"iris/internal/recording"
	"iris/internal/resilience"
	"iris/internal/segment"
	"iris/internal/tts"
	"iris/internal/turn"
	"iris/internal/wake"
	"iris/pkg/stt"
)

// app is the assembled pipeline.
type app struct {
	controller *turn.Controller
	manual     *wake.Manual
	bus        *bus.Publisher
	closers    []func() error
}

func (a *app) health() error {
	if a.controller.State() == turn.Stopped {
		return errors.New("turn controller stopped")
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("Close failed", "err", err)
		}
	}
}

func build(ctx context.Context, cfg *config.Config, driver audio.Driver, metrics *observe.Metrics) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	httpClient, err := proxy.NewClient(cfg.Network.Proxy, cfg.Network.Timeout)
	if err != nil {
		return nil, err
	}
	oaOpts := []option.RequestOption{
		option.WithAPIKey(cfg.Secrets.OpenAIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.Network.BaseURL != "" {
		oaOpts = append(oaOpts, option.WithBaseURL(cfg.Network.BaseURL))
	}
	client := openai.NewClient(oaOpts...)

	mic := audio.NewMicrophone(driver, cfg.Segment.SampleRate)
	speaker := audio.NewSpeaker(cfg.Audio.OutputRate)

	energy := segment.NewEnergy(cfg.Segment.EnergyThreshold, cfg.Segment.DynamicRatio)
	var cls segment.Classifier = energy
	if cfg.Segment.Classifier == config.ClassifierSpectral {
		cls = segment.NewSpectral(energy, cfg.Segment.SampleRate, cfg.Segment.MinBandRatio)
	}
	seg, err := segment.New(mic, cls, cfg.Segment.Segmenter())
	if err != nil {
		return nil, err
	}
	if err := seg.Calibrate(ctx); err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}

	store, err := newStore(cfg.STT.KeepDir)
	if err != nil {
		return nil, err
	}
	tr, err := newTranscriber(cfg, client, store, a)
	if err != nil {
		return nil, err
	}

	a.manual = wake.NewManual(0)
	listener, err := newWake(cfg, mic, tr, cls, a)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg, client)
	if err != nil {
		return nil, err
	}
	breaker := resilience.NewCircuitBreaker(resilience.Config{
		Name:         "dialogue",
		MaxFailures:  cfg.Dialogue.BreakerFailures,
		ResetTimeout: cfg.Dialogue.BreakerReset,
		Ignore:       dialogue.NotOutage,
	})
	engine := dialogue.NewEngine(backend, cfg.Dialogue.Engine(), dialogue.WithBreaker(breaker))

	syn, err := newSynthesizer(cfg, client, speaker)
	if err != nil {
		return nil, err
	}

	opts := []turn.Option{turn.WithObserver(notify.NewDesktop())}
	if metrics != nil {
		opts = append(opts, turn.WithObserver(metrics))
	}
	if cfg.Control.BusURL != "" {
		a.bus = bus.NewPublisher(bus.Config{URL: cfg.Control.BusURL})
		opts = append(opts, turn.WithObserver(a.bus))
	}
	if cfg.Wake.Cue {
		cue, err := notify.NewCue(afero.NewOsFs(), cfg.Wake.CuePath, speaker)
		if err != nil {
			return nil, err
		}
		opts = append(opts, turn.WithCue(cue))
	}
	if cfg.Duck.Enabled {
		opts = append(opts, turn.WithDucker(audio.NewDucker(audio.DuckConfig{
			SelfNames: cfg.Duck.SelfNames,
			Factor:    cfg.Duck.Factor,
			MinVolume: cfg.Duck.MinVolume,
			Fade:      cfg.Duck.Fade,
		})))
	}

	a.controller = turn.New(listener, seg, tr, engine, syn, opts...)
	ok = true
	return a, nil
}

// newStore keeps utterances in KeepDir when set, otherwise in a scratch
// directory that is emptied after every upload.
func newStore(keepDir string) (*recording.Store, error) {
	if keepDir != "" {
		return recording.NewStore(afero.NewOsFs(), keepDir, true)
	}
	return recording.NewStore(afero.NewOsFs(), filepath.Join(os.TempDir(), "iris"), false)
}

func newTranscriber(cfg *config.Config, client openai.Client, store *recording.Store, a *app) (stt.Transcriber, error) {
	c := cfg.STT
	switch c.Backend {
	case config.STTWhisper:
		w, err := stt.NewWhisper(c.ModelPath, stt.Options{Language: c.Language, Threads: c.Threads})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w.Close)
		return w, nil
	case config.STTCLI:
		return stt.NewCLI(c.Binary, c.ModelPath, c.Language, store), nil
	default:
		return stt.NewOpenAI(client, c.Model, c.Language, store), nil
	}
}

func newWake(cfg *config.Config, mic *audio.Microphone, tr stt.Transcriber, cls segment.Classifier, a *app) (wake.Listener, error) {
	w := cfg.Wake
	var (
		engine   wake.Engine
		keywords []string
	)
	switch w.Engine {
	case config.WakeManual:
		return a.manual, nil
	case config.WakePhrase:
		p, err := wake.NewPhrase(tr, cls, wake.PhraseConfig{
			Phrases:    w.Phrases,
			SampleRate: cfg.Segment.SampleRate,
			Chunk:      cfg.Segment.Chunk,
			Similarity: w.Similarity,
		})
		if err != nil {
			return nil, err
		}
		engine, keywords = p, w.Phrases
	default:
		p, err := wake.NewPorcupine(wake.PorcupineConfig{
			AccessKey:    cfg.Secrets.PicovoiceKey,
			ModelPath:    w.ModelPath,
			Keywords:     w.Keywords,
			KeywordPaths: w.KeywordPaths,
			Sensitivity:  w.Sensitivity,
		})
		if err != nil {
			return nil, err
		}
		engine, keywords = p, w.Keywords
		if len(w.KeywordPaths) > 0 {
			keywords = w.KeywordPaths
		}
	}

	det, err := wake.NewDetector(mic, engine, keywords)
	if err != nil {
		engine.Close()
		return nil, err
	}
	a.closers = append(a.closers, det.Close)
	return wake.First(det, a.manual), nil
}

func newBackend(cfg *config.Config, client openai.Client) (dialogue.Backend, error) {
	d := cfg.Dialogue
	if d.Provider == "openai" {
		return dialogue.NewOpenAI(client, d.Model), nil
	}
	var opts []anyllmlib.Option
	if key := cfg.Secrets.ProviderKeys[d.Provider]; key != "" {
		opts = append(opts, anyllmlib.WithAPIKey(key))
	}
	if cfg.Network.BaseURL != "" && d.Provider == "ollama" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.Network.BaseURL))
	}
	return dialogue.NewAnyLLM(d.Provider, d.Model, opts...)
}

func newSynthesizer(cfg *config.Config, client openai.Client, speaker *audio.Speaker) (tts.Synthesizer, error) {
	t := cfg.TTS
	switch t.Backend {
	case config.TTSCommand:
		return tts.NewCommand(t.Command, t.Voice, speaker.Guard())
	case config.TTSEspeak:
		return tts.NewEspeak(t.Voice, speaker.Guard())
	default:
		return tts.NewOpenAI(client, tts.OpenAIConfig{
			Model:      t.Model,
			Voice:      t.Voice,
			Format:     t.Format,
			SampleRate: cfg.Audio.OutputRate,
		}, speaker), nil
	}
}
