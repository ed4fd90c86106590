package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"time"

	"iris/internal/turn"
)

// Desktop shows a desktop notification through notify-send when the wake
// word is heard and when a reply arrives.
type Desktop struct {
	send func(ctx context.Context, summary, body string) error
}

func NewDesktop() *Desktop {
	return &Desktop{send: notifySend}
}

func (d *Desktop) Observe(e turn.Event) {
	var summary, body string
	switch e.State {
	case turn.WakeDetected:
		summary = "Listening..."
	case turn.Speaking:
		summary, body = "iris", e.Reply
	default:
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := d.send(ctx, summary, body); err != nil {
			slog.Debug("Desktop notification failed", "err", err)
		}
	}()
}

func notifySend(ctx context.Context, summary, body string) error {
	args := []string{"--app-name=iris", "--expire-time=3000", summary}
	if body != "" {
		args = append(args, body)
	}
	return exec.CommandContext(ctx, "notify-send", args...).Run()
}
