package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	percentRe = regexp.MustCompile(`(\d+)\s*%`)
)

// maxVolume is the PulseAudio soft ceiling in percent.
const maxVolume = 150

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// DuckConfig tunes how far and how fast other streams are lowered.
type DuckConfig struct {
	// SelfNames are application.name values that are never touched.
	SelfNames []string
	// Factor multiplies the current volume of other streams. Default: 0.3.
	Factor float64
	// MinVolume is the floor in percent. Default: 10.
	MinVolume int
	// Fade is the ramp duration. Default: 300ms.
	Fade time.Duration
}

// Ducker lowers every other PulseAudio sink input while the assistant is
// listening or talking and restores them afterwards.
type Ducker struct {
	mu          sync.Mutex
	active      bool
	cfg         DuckConfig
	originalVol map[int]int // sink-input id -> volume before ducking

	// pactl runs a pactl subcommand and returns its stdout.
	pactl func(ctx context.Context, args ...string) ([]byte, error)
}

func NewDucker(cfg DuckConfig) *Ducker {
	if cfg.Factor <= 0 || cfg.Factor > 1 {
		cfg.Factor = 0.3
	}
	if cfg.MinVolume <= 0 {
		cfg.MinVolume = 10
	}
	cfg.MinVolume = min(cfg.MinVolume, maxVolume)
	if cfg.Fade < 0 {
		cfg.Fade = 0
	} else if cfg.Fade == 0 {
		cfg.Fade = 300 * time.Millisecond
	}
	cfg.SelfNames = append([]string(nil), cfg.SelfNames...)

	return &Ducker{
		cfg:         cfg,
		originalVol: make(map[int]int),
		pactl:       runPactl,
	}
}

// Duck fades other streams to current*Factor, never below MinVolume.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.listStreams(ctx)
	if err != nil {
		return err
	}

	d.originalVol = make(map[int]int)
	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelfStream(s) {
			continue
		}
		to := int(math.Round(float64(s.Volume) * d.cfg.Factor))
		to = max(to, d.cfg.MinVolume)
		to = min(to, maxVolume)

		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: to})
	}

	if err := d.fade(ctx, targets); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back to their original volume. Streams that
// appeared after Duck are left alone.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.listStreams(ctx)
	if err != nil {
		return err
	}

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelfStream(s) {
			continue
		}
		orig, ok := d.originalVol[s.ID]
		if !ok {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	if err := d.fade(ctx, targets); err != nil {
		return err
	}
	d.originalVol = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelfStream(s streamInfo) bool {
	for _, name := range d.cfg.SelfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) fade(ctx context.Context, targets []fadeTarget) error {
	if len(targets) == 0 {
		return nil
	}
	if d.cfg.Fade == 0 {
		for _, s := range targets {
			if err := d.setVolume(ctx, s.id, s.to); err != nil {
				return fmt.Errorf("set volume id=%d: %w", s.id, err)
			}
		}
		return nil
	}

	const minStepDuration = 10 * time.Millisecond

	steps := max(int(d.cfg.Fade/minStepDuration), 1)
	stepDuration := d.cfg.Fade / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, s := range targets {
			v := int(math.Round(float64(s.from) + float64(s.to-s.from)*frac))
			if err := d.setVolume(ctx, s.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", s.id, err)
			}
		}

		if i < steps {
			time.Sleep(stepDuration)
		}
	}
	return nil
}

func (d *Ducker) listStreams(ctx context.Context) ([]streamInfo, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (d *Ducker) setVolume(ctx context.Context, id int, percent int) error {
	percent = max(0, min(percent, maxVolume))
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	return err
}

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

func parseSinkInputs(text string) []streamInfo {
	parts := strings.Split(text, "Sink Input #")
	if len(parts) <= 1 {
		return nil
	}

	var res []streamInfo
	for _, block := range parts[1:] {
		newline := strings.IndexByte(block, '\n')
		if newline <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:newline]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}
		for _, line := range strings.Split(block[newline+1:], "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					if v, err := strconv.Atoi(m[1]); err == nil {
						s.Volume = v
					}
				}
			}

			// application.name = "Firefox"
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if _, rest, ok := strings.Cut(line, `"`); ok {
					s.AppName, _, _ = strings.Cut(rest, `"`)
				}
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
