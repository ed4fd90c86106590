package audio_test

import (
	"context"
	"errors"
	"testing"

	"iris/internal/audio"
	"iris/internal/audio/mock"
	"iris/internal/fault"
)

func TestGuard_Exclusive(t *testing.T) {
	t.Parallel()
	g := audio.NewGuard("mic")

	release, err := g.Acquire("wake")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if g.Owner() != "wake" {
		t.Errorf("Owner = %q, want wake", g.Owner())
	}

	if _, err := g.Acquire("segmenter"); !errors.Is(err, audio.ErrDeviceBusy) {
		t.Fatalf("second Acquire err = %v, want ErrDeviceBusy", err)
	}

	release()
	release() // idempotent
	if g.InUse() {
		t.Fatal("guard still in use after release")
	}
	if _, err := g.Acquire("segmenter"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestMicrophone_OpenReadClose(t *testing.T) {
	t.Parallel()
	drv := &mock.Driver{Frame: mock.Script(160, mock.Segment{Frames: 2, Amplitude: 1000})}
	mic := audio.NewMicrophone(drv, 16000)

	c, err := mic.Open("test", 160)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.Format().FrameLength != 160 || c.Format().SampleRate != 16000 {
		t.Errorf("Format = %+v", c.Format())
	}
	f, err := c.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(f) != 160 || f[0] != 1000 {
		t.Errorf("frame = len %d first %d", len(f), f[0])
	}

	if _, err := mic.Open("other", 160); !fault.Is(err, fault.DeviceUnavailable) {
		t.Fatalf("concurrent Open err = %v, want DeviceUnavailable", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mic.Guard().InUse() {
		t.Fatal("microphone still held after Close")
	}
	if drv.Closes() != 1 {
		t.Errorf("driver closes = %d, want 1", drv.Closes())
	}
}

func TestMicrophone_OpenFailureReleases(t *testing.T) {
	t.Parallel()
	drv := &mock.Driver{OpenErr: errors.New("no such device")}
	mic := audio.NewMicrophone(drv, 16000)

	_, err := mic.Open("wake", 512)
	if !fault.Is(err, fault.DeviceUnavailable) {
		t.Fatalf("err = %v, want DeviceUnavailable", err)
	}
	if mic.Guard().InUse() {
		t.Fatal("guard held after failed open")
	}
}

func TestMicrophone_ReadHonoursContext(t *testing.T) {
	t.Parallel()
	mic := audio.NewMicrophone(&mock.Driver{}, 16000)
	c, err := mic.Open("test", 160)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Read err = %v, want context.Canceled", err)
	}
}

func TestWithCapture_ReleasesOnError(t *testing.T) {
	t.Parallel()
	drv := &mock.Driver{}
	mic := audio.NewMicrophone(drv, 16000)
	boom := errors.New("boom")

	err := audio.WithCapture(mic, "test", 160, func(c audio.Capture) error {
		if !mic.Guard().InUse() {
			t.Error("guard not held inside scope")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if mic.Guard().InUse() {
		t.Fatal("guard held after scope exit")
	}
	if drv.Opens() != 1 || drv.Closes() != 1 {
		t.Errorf("opens/closes = %d/%d, want 1/1", drv.Opens(), drv.Closes())
	}
}
