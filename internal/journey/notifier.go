package journey

import (
	"sync"
	"time"

	"go-journey/internal/classifier"
	"go-journey/internal/signal"

	"go.uber.org/zap"
)

// Event describes one committed journey change
type Event struct {
	MemberID       string                    `json:"member_id"`
	Decision       Decision                  `json:"decision"`
	Move           Move                      `json:"move"`
	Previous       State                     `json:"previous"`
	Current        State                     `json:"current"`
	Classification classifier.Classification `json:"classification"`
	Signals        []signal.Signal           `json:"signals,omitempty"`
	Timestamp      time.Time                 `json:"timestamp"`
}

// MissionSwitched reports whether the event started a new mission run
func (e Event) MissionSwitched() bool {
	return e.Previous.MissionID != e.Current.MissionID
}

// StageChanged reports whether the member moved to a different stage
func (e Event) StageChanged() bool {
	return e.Previous.MissionID != e.Current.MissionID || e.Previous.StageID != e.Current.StageID
}

// Listener is called for every committed refresh, in commit order
type Listener func(Event)

// notifier delivers events to listeners on a single goroutine in commit order.
// publish never waits: when the buffer is full the event is dropped and logged.
type notifier struct {
	mu        sync.RWMutex
	listeners []Listener
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

func newNotifier(buffer int, logger *zap.Logger) *notifier {
	n := &notifier{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.run()
	return n
}

func (n *notifier) add(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

func (n *notifier) publish(e Event) {
	defer func() {
		// publish after close is dropped
		if recover() != nil {
			n.logger.Debug("Dropped event after close", zap.String("member_id", e.MemberID))
		}
	}()
	select {
	case n.events <- e:
	default:
		n.logger.Warn("Event buffer full, dropping journey event",
			zap.String("member_id", e.MemberID),
			zap.String("move", string(e.Move)))
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for e := range n.events {
		n.mu.RLock()
		listeners := append([]Listener(nil), n.listeners...)
		n.mu.RUnlock()
		for _, l := range listeners {
			n.deliver(l, e)
		}
	}
}

func (n *notifier) deliver(l Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Listener panicked", zap.String("member_id", e.MemberID), zap.Any("panic", r))
		}
	}()
	l(e)
}

// close drains pending events and waits for the delivery goroutine
func (n *notifier) close() {
	n.closeOnce.Do(func() { close(n.events) })
	<-n.done
}
