package transform

import (
	"math/rand/v2"
	"time"
)

// DefaultDescription is the placeholder text written into synthesized
// description fields. The legacy schema never carried descriptions, so
// this is an acknowledged data-quality gap rather than real content.
const DefaultDescription = "This is a sample description generated during data migration."

// DefaultHorizonDays bounds how far into the future synthesized dates
// may land. The bound is configuration, not business logic; nothing
// downstream depends on the exact value.
const DefaultHorizonDays = 365

// Synthesizer produces placeholder values for destination fields that
// have no legacy counterpart.
type Synthesizer interface {
	// Description returns placeholder description text.
	Description() string
	// FutureDate returns a YYYY-MM-DD date strictly after today.
	FutureDate() string
}

// RandomSynthesizer fills placeholders with fixed description text and a
// uniformly random date between 1 and HorizonDays days from now.
type RandomSynthesizer struct {
	Desc        string
	HorizonDays int
	Now         func() time.Time
}

// NewRandomSynthesizer returns a synthesizer with the given description
// text and horizon. Zero values fall back to the defaults.
func NewRandomSynthesizer(desc string, horizonDays int) *RandomSynthesizer {
	if desc == "" {
		desc = DefaultDescription
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &RandomSynthesizer{Desc: desc, HorizonDays: horizonDays, Now: time.Now}
}

// Description returns the configured placeholder text.
func (s *RandomSynthesizer) Description() string {
	return s.Desc
}

// FutureDate returns a random date 1..HorizonDays days from now.
func (s *RandomSynthesizer) FutureDate() string {
	days := 1 + rand.IntN(s.HorizonDays)
	return s.Now().AddDate(0, 0, days).Format(DateLayout)
}
