package countdown

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// EventType names a Controller state transition.
type EventType string

const (
	EventStarted   EventType = "started"
	EventTicked    EventType = "ticked"
	EventCompleted EventType = "completed"
)

// Event is the channel form of an Observer callback.
type Event struct {
	Type      EventType
	Remaining int
	At        time.Time
}

// ChannelObserver turns Observer callbacks into Events on a buffered channel.
// Sends block once the buffer is full, so the consumer must keep draining
// Events for as long as the controller runs.
type ChannelObserver struct {
	clock     clockwork.Clock
	remaining func() int
	ch        chan Event
}

// NewChannelObserver creates a ChannelObserver. remaining is consulted for the
// value reported with EventStarted and may be nil.
func NewChannelObserver(clock clockwork.Clock, buffer int, remaining func() int) *ChannelObserver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ChannelObserver{
		clock:     clock,
		remaining: remaining,
		ch:        make(chan Event, buffer),
	}
}

// Events returns the receive side of the event stream.
func (o *ChannelObserver) Events() <-chan Event {
	return o.ch
}

func (o *ChannelObserver) OnStart() {
	n := 0
	if o.remaining != nil {
		n = o.remaining()
	}
	o.ch <- Event{Type: EventStarted, Remaining: n, At: o.clock.Now()}
}

func (o *ChannelObserver) OnTick(remaining int) {
	o.ch <- Event{Type: EventTicked, Remaining: remaining, At: o.clock.Now()}
}

func (o *ChannelObserver) OnComplete() {
	o.ch <- Event{Type: EventCompleted, Remaining: 0, At: o.clock.Now()}
}
