package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Wake.Keywords[0] != "jarvis" || cfg.Dialogue.Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "iris.yaml")
	data := `
log_level: debug
wake:
  engine: phrase
  phrases: ["hey iris"]
segment:
  chunk: 30ms
  trailing_silence: 1.5s
dialogue:
  provider: ollama
  model: llama3
  memory: true
tts:
  backend: command
  command: say -v {voice} {text}
  voice: Milena
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != LogDebug || cfg.Wake.Engine != WakePhrase {
		t.Errorf("log=%q wake=%q", cfg.LogLevel, cfg.Wake.Engine)
	}
	if cfg.Segment.Chunk != 30*time.Millisecond || cfg.Segment.TrailingSilence != 1500*time.Millisecond {
		t.Errorf("segment = %+v", cfg.Segment)
	}
	if cfg.Segment.PreRoll != time.Second {
		t.Errorf("pre_roll default lost: %v", cfg.Segment.PreRoll)
	}
	if !cfg.Dialogue.Memory || cfg.Dialogue.Model != "llama3" || cfg.Dialogue.Temperature != 0.7 {
		t.Errorf("dialogue = %+v", cfg.Dialogue)
	}
	if cfg.TTS.Voice != "Milena" {
		t.Errorf("voice = %q", cfg.TTS.Voice)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Control.Socket != "/tmp/iris.sock" {
		t.Errorf("socket = %q", cfg.Control.Socket)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := LoadFromReader(strings.NewReader("wake:\n  engien: porcupine\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Wake.Engine = "clap"
	cfg.Segment.Chunk = 25 * time.Millisecond
	cfg.STT.Backend = STTWhisper
	cfg.Dialogue.Provider = "eliza"
	cfg.Dialogue.Temperature = 3
	cfg.TTS.Backend = "morse"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"log_level", "wake.engine", "chunk", "stt.model_path",
		"dialogue.provider", "dialogue.temperature", "tts.backend",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestSecrets(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"ANTHROPIC_API_KEY": "ant",
	}
	cfg := Default()
	LoadSecrets(cfg, func(k string) string { return env[k] })

	if cfg.Secrets.OpenAIKey != "sk-test" || cfg.Secrets.ProviderKeys["anthropic"] != "ant" {
		t.Errorf("secrets = %+v", cfg.Secrets)
	}

	err := CheckSecrets(cfg)
	if err == nil || !strings.Contains(err.Error(), "PICOVOICE_ACCESS_KEY") {
		t.Errorf("CheckSecrets = %v, want missing picovoice key", err)
	}

	cfg.Wake.Engine = WakeManual
	if err := CheckSecrets(cfg); err != nil {
		t.Errorf("CheckSecrets = %v", err)
	}

	cfg.Dialogue.Provider = "groq"
	if err := CheckSecrets(cfg); err == nil || !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("CheckSecrets = %v, want missing groq key", err)
	}
}

func TestLogLevel_Slog(t *testing.T) {
	t.Parallel()
	if LogDebug.Slog().String() != "DEBUG" || LogLevel("").Slog().String() != "INFO" {
		t.Error("unexpected slog mapping")
	}
}
