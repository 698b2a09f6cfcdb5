package indicator

import "time"

// Blink intervals are accepted strictly between these bounds, in ms.
const (
	MinBlinkInterval = 0
	MaxBlinkInterval = 10000
)

// DefaultDemoStep is the time each demo step is shown.
const DefaultDemoStep = 3000 * time.Millisecond

// Options are the runtime behaviour switches of a Controller.
type Options struct {
	// ClearAllBeforeSwitch turns every LED off before blink, shine and off
	// apply their own color.
	ClearAllBeforeSwitch bool

	// TrackDemoInterference abandons a running demo when a blink or shine
	// issued outside the script puts the command counter out of step.
	TrackDemoInterference bool

	DemoStep time.Duration
}

// DefaultOptions enables both switches.
func DefaultOptions() Options {
	return Options{
		ClearAllBeforeSwitch:  true,
		TrackDemoInterference: true,
		DemoStep:              DefaultDemoStep,
	}
}

func (o Options) demoStep() time.Duration {
	if o.DemoStep <= 0 {
		return DefaultDemoStep
	}
	return o.DemoStep
}
