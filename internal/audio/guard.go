// Package audio owns the physical audio devices: exclusive access guards, the
// portaudio capture path, beep-backed playback and PulseAudio ducking.
package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDeviceBusy is returned when a guard is already held by another owner.
var ErrDeviceBusy = errors.New("audio: device busy")

// Guard grants one owner at a time exclusive use of a device. Acquire never
// blocks: a second claimant gets ErrDeviceBusy naming the current holder.
type Guard struct {
	name string

	mu    sync.Mutex
	owner string
}

func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// Acquire claims the device for owner. The returned release func is safe to
// call more than once.
func (g *Guard) Acquire(owner string) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != "" {
		return nil, fmt.Errorf("%w: %s held by %s", ErrDeviceBusy, g.name, g.owner)
	}
	g.owner = owner

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.owner = ""
			g.mu.Unlock()
		})
	}, nil
}

// Owner returns the current holder, or "" when the device is free.
func (g *Guard) Owner() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owner
}

// InUse reports whether someone holds the device.
func (g *Guard) InUse() bool {
	return g.Owner() != ""
}
