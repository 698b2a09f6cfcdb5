package events

// Event type constants for kelindar/event.
const (
	TypeLEDChanged uint32 = iota + 1
	TypeCommandExecuted
	TypeTimerTick
	TypeDemoStep
	TypeDemoEnded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// LEDChangedEvent is published after a successful register write.
type LEDChangedEvent struct {
	Register byte   `json:"register"`
	Cause    string `json:"cause"`
}

// Type returns the event type identifier for LEDChangedEvent.
func (e LEDChangedEvent) Type() uint32 { return TypeLEDChanged }

// CommandExecutedEvent reports the outcome of one controller command.
type CommandExecutedEvent struct {
	Command string `json:"command"`
	Args    string `json:"args,omitempty"`
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
}

// Type returns the event type identifier for CommandExecutedEvent.
func (e CommandExecutedEvent) Type() uint32 { return TypeCommandExecuted }

// TimerTickEvent is published before each timer callback runs.
type TimerTickEvent struct {
	Timer string `json:"timer"`
}

// Type returns the event type identifier for TimerTickEvent.
func (e TimerTickEvent) Type() uint32 { return TypeTimerTick }

// DemoStepEvent is published when the demo script runs a step.
type DemoStepEvent struct {
	Step    int    `json:"step"`
	Command string `json:"command"`
}

// Type returns the event type identifier for DemoStepEvent.
func (e DemoStepEvent) Type() uint32 { return TypeDemoStep }

// DemoEndedEvent is published when a demo session is destroyed.
type DemoEndedEvent struct {
	Reason string `json:"reason"` // completed, interrupted, cancelled or failed
	Step   int    `json:"step"`
}

// Type returns the event type identifier for DemoEndedEvent.
func (e DemoEndedEvent) Type() uint32 { return TypeDemoEnded }
