package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"iris/internal/fault"
	"iris/pkg/audioconv"
)

// OpenAIConfig selects the hosted speech model.
type OpenAIConfig struct {
	Model  string // default "tts-1"
	Voice  string // default "alloy"
	Format string // wav, mp3 or opus; default "wav"
	// SampleRate is the rate decoded speech is converted to before playback.
	SampleRate int
}

// OpenAI synthesizes speech with the OpenAI audio API and plays it locally.
type OpenAI struct {
	client openai.Client
	cfg    OpenAIConfig
	player Player
}

func NewOpenAI(client openai.Client, cfg OpenAIConfig, player Player) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = "tts-1"
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}
	return &OpenAI{client: client, cfg: cfg, player: player}
}

func (s *OpenAI) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.cfg.Model),
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(s.cfg.Format),
	})
	if err != nil {
		return fault.New(fault.SynthesisFailed, "tts.openai", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.New(fault.SynthesisFailed, "tts.openai", fmt.Errorf("read speech: %w", err))
	}
	samples, err := audioconv.Decode(data, s.cfg.SampleRate)
	if err != nil {
		return fault.New(fault.SynthesisFailed, "tts.openai", err)
	}

	slog.Debug("Speaking", "voice", s.cfg.Voice, "samples", len(samples))
	if err := s.player.Play(ctx, owner, samples, s.cfg.SampleRate); err != nil {
		return fault.New(fault.SynthesisFailed, "tts.play", err)
	}
	return nil
}
