package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"iris/internal/dialogue"
	"iris/internal/segment"
)

// ValidProviders lists the dialogue providers the daemon can build.
var ValidProviders = []string{"openai", "ollama", "anthropic", "gemini", "deepseek", "mistral", "groq"}

// Default returns a configuration that runs with only an OpenAI key and a
// Picovoice access key in the environment.
func Default() *Config {
	seg := segment.DefaultConfig()
	dlg := dialogue.DefaultConfig()
	return &Config{
		LogLevel: LogInfo,
		Audio:    AudioConfig{OutputRate: 24000},
		Wake: WakeConfig{
			Engine:      WakePorcupine,
			Keywords:    []string{"jarvis"},
			Sensitivity: 0.5,
			Similarity:  0.88,
		},
		Segment: SegmentConfig{
			SampleRate:      seg.SampleRate,
			Chunk:           seg.Chunk,
			PreRoll:         seg.PreRoll,
			MaxWait:         seg.MaxWait,
			TrailingSilence: seg.TrailingSilence,
			MinUtterance:    seg.MinUtterance,
			MaxUtterance:    seg.MaxUtterance,
			Calibration:     seg.Calibration,
			Classifier:      ClassifierEnergy,
			EnergyThreshold: 300,
			DynamicRatio:    1.5,
			MinBandRatio:    0.6,
		},
		STT: STTConfig{
			Backend:  STTOpenAI,
			Model:    "whisper-1",
			Language: "en",
			Binary:   "whisper-cli",
		},
		Dialogue: DialogueConfig{
			Provider:        "openai",
			Model:           "gpt-3.5-turbo",
			SystemPrompt:    dlg.SystemPrompt,
			Temperature:     dlg.Temperature,
			MaxHistory:      dlg.MaxHistory,
			FallbackReply:   dlg.FallbackReply,
			BreakerFailures: 3,
			BreakerReset:    30 * time.Second,
		},
		TTS: TTSConfig{
			Backend: TTSOpenAI,
			Voice:   "alloy",
			Model:   "tts-1",
			Format:  "wav",
			Command: "espeak-ng -v {voice} {text}",
		},
		Network: NetworkConfig{Timeout: 60 * time.Second},
		Control: ControlConfig{Socket: "/tmp/iris.sock"},
		Duck: DuckConfig{
			Factor:    0.3,
			MinVolume: 10,
			Fade:      300 * time.Millisecond,
			SelfNames: []string{"iris"},
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		return cfg, Validate(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// providerEnv maps dialogue providers to the variable holding their key.
var providerEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// LoadSecrets fills cfg.Secrets using getenv (os.Getenv in production).
func LoadSecrets(cfg *Config, getenv func(string) string) {
	cfg.Secrets.OpenAIKey = getenv("OPENAI_API_KEY")
	cfg.Secrets.PicovoiceKey = getenv("PICOVOICE_ACCESS_KEY")
	cfg.Secrets.ProviderKeys = make(map[string]string)
	for p, env := range providerEnv {
		if v := getenv(env); v != "" {
			cfg.Secrets.ProviderKeys[p] = v
		}
	}
}

// CheckSecrets reports credentials the selected backends need but the
// environment does not provide.
func CheckSecrets(cfg *Config) error {
	var errs []error
	needsOpenAI := cfg.STT.Backend == STTOpenAI || cfg.TTS.Backend == TTSOpenAI || cfg.Dialogue.Provider == "openai"
	if needsOpenAI && cfg.Secrets.OpenAIKey == "" && cfg.Network.BaseURL == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
	}
	if cfg.Wake.Engine == WakePorcupine && cfg.Secrets.PicovoiceKey == "" {
		errs = append(errs, errors.New("PICOVOICE_ACCESS_KEY is not set"))
	}
	if env, ok := providerEnv[cfg.Dialogue.Provider]; ok && cfg.Secrets.ProviderKeys[cfg.Dialogue.Provider] == "" {
		errs = append(errs, fmt.Errorf("%s is not set", env))
	}
	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Audio.OutputRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d must be positive", cfg.Audio.OutputRate))
	}

	switch cfg.Wake.Engine {
	case WakePorcupine:
		if len(cfg.Wake.Keywords) == 0 && len(cfg.Wake.KeywordPaths) == 0 {
			errs = append(errs, errors.New("wake: porcupine needs keywords or keyword_paths"))
		}
		if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
			errs = append(errs, fmt.Errorf("wake.sensitivity %v must be within [0, 1]", cfg.Wake.Sensitivity))
		}
	case WakePhrase:
		if len(cfg.Wake.Phrases) == 0 {
			errs = append(errs, errors.New("wake: phrase engine needs phrases"))
		}
		if cfg.Wake.Similarity <= 0 || cfg.Wake.Similarity > 1 {
			errs = append(errs, fmt.Errorf("wake.similarity %v must be within (0, 1]", cfg.Wake.Similarity))
		}
	case WakeManual:
	default:
		errs = append(errs, fmt.Errorf("wake.engine %q is invalid; valid values: porcupine, phrase, manual", cfg.Wake.Engine))
	}

	if err := cfg.Segment.Segmenter().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("segment: %w", err))
	}
	switch cfg.Segment.Classifier {
	case ClassifierEnergy, ClassifierSpectral:
	default:
		errs = append(errs, fmt.Errorf("segment.classifier %q is invalid; valid values: energy, spectral", cfg.Segment.Classifier))
	}

	switch cfg.STT.Backend {
	case STTOpenAI:
	case STTWhisper, STTCLI:
		if cfg.STT.ModelPath == "" {
			errs = append(errs, fmt.Errorf("stt.model_path is required for the %s backend", cfg.STT.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("stt.backend %q is invalid; valid values: openai, whisper, cli", cfg.STT.Backend))
	}

	if !slices.Contains(ValidProviders, cfg.Dialogue.Provider) {
		errs = append(errs, fmt.Errorf("dialogue.provider %q is invalid; valid values: %s",
			cfg.Dialogue.Provider, strings.Join(ValidProviders, ", ")))
	}
	if cfg.Dialogue.Temperature < 0 || cfg.Dialogue.Temperature > 2 {
		errs = append(errs, fmt.Errorf("dialogue.temperature %v must be within [0, 2]", cfg.Dialogue.Temperature))
	}
	if strings.TrimSpace(cfg.Dialogue.FallbackReply) == "" {
		errs = append(errs, errors.New("dialogue.fallback_reply must not be empty"))
	}

	switch cfg.TTS.Backend {
	case TTSOpenAI, TTSEspeak:
	case TTSCommand:
		if strings.TrimSpace(cfg.TTS.Command) == "" {
			errs = append(errs, errors.New("tts.command is required for the command backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("tts.backend %q is invalid; valid values: openai, command, espeak", cfg.TTS.Backend))
	}

	if cfg.Network.Timeout <= 0 {
		errs = append(errs, errors.New("network.timeout must be positive"))
	}
	if cfg.Control.Socket == "" {
		errs = append(errs, errors.New("control.socket must not be empty"))
	}
	return errors.Join(errs...)
}

// Segmenter converts the segment section to the segmenter's config.
func (c SegmentConfig) Segmenter() segment.Config {
	return segment.Config{
		SampleRate:      c.SampleRate,
		Chunk:           c.Chunk,
		PreRoll:         c.PreRoll,
		MaxWait:         c.MaxWait,
		TrailingSilence: c.TrailingSilence,
		MinUtterance:    c.MinUtterance,
		MaxUtterance:    c.MaxUtterance,
		Calibration:     c.Calibration,
	}
}

// Engine converts the dialogue section to the dialogue engine's config.
func (c DialogueConfig) Engine() dialogue.Config {
	return dialogue.Config{
		SystemPrompt:  c.SystemPrompt,
		Temperature:   c.Temperature,
		Memory:        c.Memory,
		MaxHistory:    c.MaxHistory,
		FallbackReply: c.FallbackReply,
	}
}
