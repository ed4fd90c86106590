package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"plain", base, Unknown},
		{"classified", New(TranscriptionFailed, "stt", base), TranscriptionFailed},
		{"wrapped", fmt.Errorf("outer: %w", New(SynthesisFailed, "tts", base)), SynthesisFailed},
		{"canceled", context.Canceled, Interrupted},
		{"canceled wins", New(DialogueFailed, "chat", fmt.Errorf("x: %w", context.Canceled)), Interrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeverity(t *testing.T) {
	t.Parallel()
	tests := map[Kind]Severity{
		DeviceUnavailable:   Fatal,
		TranscriptionFailed: TurnAbandoned,
		DialogueUnavailable: Recovered,
		DialogueFailed:      TurnAbandoned,
		SynthesisFailed:     TurnAbandoned,
		Interrupted:         Shutdown,
		Unknown:             Fatal,
	}
	for k, want := range tests {
		if got := k.Severity(); got != want {
			t.Errorf("%v.Severity() = %v, want %v", k, got, want)
		}
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	t.Parallel()
	base := errors.New("socket closed")
	err := New(DeviceUnavailable, "mic.open", base)
	if !errors.Is(err, base) {
		t.Error("errors.Is should see the wrapped cause")
	}
	if got := err.Error(); got != "mic.open: device_unavailable: socket closed" {
		t.Errorf("Error() = %q", got)
	}
}
