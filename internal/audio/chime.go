package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/oshokin/shake-couplet/internal/logger"
)

// SampleRate of the speaker and every generated tone.
const SampleRate = beep.SampleRate(48000)

// Note is one tone of the chime.
type Note struct {
	Frequency float64
	Duration  time.Duration
}

// DefaultNotes ring like a small bell: a high note and its fifth.
func DefaultNotes() []Note {
	return []Note{
		{Frequency: 1318.5, Duration: 120 * time.Millisecond},
		{Frequency: 1975.5, Duration: 280 * time.Millisecond},
	}
}

// volume is the attenuation applied to the chime, in powers of two.
const volume = -2

// Chime builds a finite streamer playing notes one after another.
func Chime(sr beep.SampleRate, notes []Note) (beep.Streamer, error) {
	parts := make([]beep.Streamer, 0, len(notes))

	for _, note := range notes {
		tone, err := generators.SineTone(sr, note.Frequency)
		if err != nil {
			return nil, fmt.Errorf("tone %.1f Hz: %w", note.Frequency, err)
		}

		parts = append(parts, beep.Take(sr.N(note.Duration), tone))
	}

	return &effects.Volume{
		Streamer: beep.Seq(parts...),
		Base:     2,
		Volume:   volume,
	}, nil
}

// Player plays the chime.
type Player interface {
	Play()
	Close()
}

// Nop is the silent player.
type Nop struct{}

// Play does nothing.
func (Nop) Play() {}

// Close does nothing.
func (Nop) Close() {}

// Speaker plays the chime on the default audio device.
type Speaker struct {
	ctx   context.Context //nolint:containedctx // Carries the logger of the page.
	notes []Note
	mixer *beep.Mixer

	mu     sync.Mutex
	closed bool
}

// NewSpeaker opens the default audio device.
func NewSpeaker(ctx context.Context, notes []Note) (*Speaker, error) {
	if err := speaker.Init(SampleRate, SampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	s := &Speaker{
		ctx:   logger.WithName(ctx, "audio"),
		notes: notes,
		mixer: &beep.Mixer{},
	}

	speaker.Play(s.mixer)

	return s, nil
}

// Play starts a new chime without waiting for it to finish.
func (s *Speaker) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	chime, err := Chime(SampleRate, s.notes)
	if err != nil {
		logger.Warnf(s.ctx, "Chime is not playable: %v", err)

		return
	}

	speaker.Lock()
	s.mixer.Add(chime)
	speaker.Unlock()
}

// Close silences the mixer. The device itself stays open until the process exits.
func (s *Speaker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true

	speaker.Lock()
	s.mixer.Clear()
	speaker.Unlock()
}

// Open returns a speaker when enabled and available, the silent player otherwise.
func Open(ctx context.Context, enabled bool) Player {
	if !enabled {
		return Nop{}
	}

	s, err := NewSpeaker(ctx, DefaultNotes())
	if err != nil {
		logger.Warnf(ctx, "Audio is disabled: %v", err)

		return Nop{}
	}

	return s
}
