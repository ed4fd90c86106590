//go:build espeak

package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
iris_espeak_init(void)
{
	return espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0);
}

static int
iris_espeak_say(const char *text, const char *voice)
{
	if (!text)
	{ return -1; }

	if (voice && voice[0])
	{
		espeak_VOICE specs = { 0 };
		specs.languages = voice;
		espeak_SetVoiceByProperties(&specs);
	}

	espeak_ERROR rc = espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL);
	espeak_Synchronize();
	return rc == EE_OK ? 0 : (int)rc;
}
*/
import "C"

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unsafe"

	"iris/internal/audio"
	"iris/internal/fault"
)

var espeakInit struct {
	once sync.Once
	rate int
}

// Espeak speaks through the in-process espeak-ng engine. Voice is a language
// or voice name such as "en" or "ru".
type Espeak struct {
	voice string
	guard *audio.Guard
}

func NewEspeak(voice string, guard *audio.Guard) (*Espeak, error) {
	espeakInit.once.Do(func() {
		espeakInit.rate = int(C.iris_espeak_init())
	})
	if espeakInit.rate <= 0 {
		return nil, fmt.Errorf("tts: espeak-ng init failed: %d", espeakInit.rate)
	}
	return &Espeak{voice: voice, guard: guard}, nil
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if e.guard != nil {
		release, err := e.guard.Acquire(owner)
		if err != nil {
			return fault.New(fault.SynthesisFailed, "tts.espeak", err)
		}
		defer release()
	}

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	cvoice := C.CString(e.voice)
	defer C.free(unsafe.Pointer(cvoice))

	done := make(chan int, 1)
	go func() {
		done <- int(C.iris_espeak_say(ctext, cvoice))
	}()

	select {
	case rc := <-done:
		if rc != 0 {
			return fault.New(fault.SynthesisFailed, "tts.espeak", fmt.Errorf("espeak_Synth failed: %d", rc))
		}
		return nil
	case <-ctx.Done():
		C.espeak_Cancel()
		<-done
		return fault.New(fault.Interrupted, "tts.espeak", ctx.Err())
	}
}
