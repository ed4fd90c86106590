// Package config holds the daemon configuration: a YAML file layered over
// built-in defaults, with credentials taken from the environment.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog converts l to a slog level. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration.
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Audio    AudioConfig    `yaml:"audio"`
	Wake     WakeConfig     `yaml:"wake"`
	Segment  SegmentConfig  `yaml:"segment"`
	STT      STTConfig      `yaml:"stt"`
	Dialogue DialogueConfig `yaml:"dialogue"`
	TTS      TTSConfig      `yaml:"tts"`
	Network  NetworkConfig  `yaml:"network"`
	Control  ControlConfig  `yaml:"control"`
	Duck     DuckConfig     `yaml:"duck"`

	// Secrets are never read from the YAML file.
	Secrets Secrets `yaml:"-"`
}

type AudioConfig struct {
	// InputDevice is a substring of the capture device name. Empty selects
	// the system default.
	InputDevice string `yaml:"input_device"`
	// OutputRate is the speaker sample rate.
	OutputRate int `yaml:"output_rate"`
}

// Wake engines.
const (
	WakePorcupine = "porcupine"
	WakePhrase    = "phrase"
	WakeManual    = "manual"
)

type WakeConfig struct {
	Engine       string   `yaml:"engine"`
	Keywords     []string `yaml:"keywords"`
	KeywordPaths []string `yaml:"keyword_paths"`
	ModelPath    string   `yaml:"model_path"`
	Sensitivity  float32  `yaml:"sensitivity"`

	// Phrases and Similarity configure the phrase engine.
	Phrases    []string `yaml:"phrases"`
	Similarity float64  `yaml:"similarity"`

	// Cue plays a confirmation sound after detection. CuePath selects an mp3
	// or wav file; empty uses a short tone.
	Cue     bool   `yaml:"cue"`
	CuePath string `yaml:"cue_path"`
}

// Speech classifiers.
const (
	ClassifierEnergy   = "energy"
	ClassifierSpectral = "spectral"
)

type SegmentConfig struct {
	SampleRate      int           `yaml:"sample_rate"`
	Chunk           time.Duration `yaml:"chunk"`
	PreRoll         time.Duration `yaml:"pre_roll"`
	MaxWait         time.Duration `yaml:"max_wait"`
	TrailingSilence time.Duration `yaml:"trailing_silence"`
	MinUtterance    time.Duration `yaml:"min_utterance"`
	MaxUtterance    time.Duration `yaml:"max_utterance"`
	Calibration     time.Duration `yaml:"calibration"`

	Classifier      string  `yaml:"classifier"`
	EnergyThreshold float64 `yaml:"energy_threshold"`
	DynamicRatio    float64 `yaml:"dynamic_ratio"`
	MinBandRatio    float64 `yaml:"min_band_ratio"`
}

// Transcription backends.
const (
	STTOpenAI  = "openai"
	STTWhisper = "whisper"
	STTCLI     = "cli"
)

type STTConfig struct {
	Backend  string `yaml:"backend"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`

	// ModelPath is the ggml model for the whisper and cli backends.
	ModelPath string `yaml:"model_path"`
	// Binary is the whisper.cpp executable for the cli backend.
	Binary  string `yaml:"binary"`
	Threads int    `yaml:"threads"`

	// KeepDir keeps every uploaded utterance as a WAV file when set.
	KeepDir string `yaml:"keep_dir"`
}

type DialogueConfig struct {
	// Provider is openai or any provider name understood by any-llm.
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	SystemPrompt  string  `yaml:"system_prompt"`
	Temperature   float64 `yaml:"temperature"`
	Memory        bool    `yaml:"memory"`
	MaxHistory    int     `yaml:"max_history"`
	FallbackReply string  `yaml:"fallback_reply"`

	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// Synthesis backends.
const (
	TTSOpenAI  = "openai"
	TTSCommand = "command"
	TTSEspeak  = "espeak"
)

type TTSConfig struct {
	Backend string `yaml:"backend"`
	Voice   string `yaml:"voice"`
	Model   string `yaml:"model"`
	Format  string `yaml:"format"`
	// Command is the argv template for the command backend.
	Command string `yaml:"command"`
}

type NetworkConfig struct {
	// Timeout bounds every backend HTTP request.
	Timeout time.Duration `yaml:"timeout"`
	// Proxy is a SOCKS5 host:port used for backend requests.
	Proxy string `yaml:"proxy"`
	// BaseURL overrides the OpenAI-compatible API endpoint.
	BaseURL string `yaml:"base_url"`
}

type ControlConfig struct {
	Socket      string `yaml:"socket"`
	MetricsAddr string `yaml:"metrics_addr"`
	// BusURL is a websocket endpoint receiving turn events.
	BusURL string `yaml:"bus_url"`
}

type DuckConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Factor    float64       `yaml:"factor"`
	MinVolume int           `yaml:"min_volume"`
	Fade      time.Duration `yaml:"fade"`
	SelfNames []string      `yaml:"self_names"`
}

// Secrets are credentials loaded from the environment.
type Secrets struct {
	OpenAIKey    string
	PicovoiceKey string
	ProviderKeys map[string]string
}
