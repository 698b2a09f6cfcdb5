package events

import (
	"github.com/kelindar/event"
)

// Bus carries controller events to observers. Delivery is asynchronous:
// each subscriber drains its own queue on a dispatcher goroutine, so a slow
// observer never holds up the event loop.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// publishers routes a type id to the typed publish of that event.
var publishers = map[uint32]func(*event.Dispatcher, Event){
	TypeLEDChanged:      publishAs[LEDChangedEvent],
	TypeCommandExecuted: publishAs[CommandExecutedEvent],
	TypeTimerTick:       publishAs[TimerTickEvent],
	TypeDemoStep:        publishAs[DemoStepEvent],
	TypeDemoEnded:       publishAs[DemoEndedEvent],
}

func publishAs[T Event](d *event.Dispatcher, ev Event) {
	if e, ok := ev.(T); ok {
		event.Publish(d, e)
	}
}

// Publish sends ev to the subscribers of its type. Unknown types are
// dropped.
func (b *Bus) Publish(ev Event) {
	if publish, ok := publishers[ev.Type()]; ok {
		publish(b.dispatcher, ev)
	}
}

// Subscribe calls fn for every event of type T published on b. The
// returned function unsubscribes.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	return event.Subscribe(b.dispatcher, fn)
}
