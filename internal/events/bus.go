// Package events implements the engine's event surface (spec.md §6): a
// broadcast bus carrying per-feature agent stream events plus the
// project-wide lifecycle events (feature_started, feature_completed,
// auto_mode_task_started, spec_regeneration_progress, ...) out to every
// subscriber, typically one per attached UI client.
//
// Grounded on the teacher's (jorge-barreto/orc) internal/dispatch
// channel-based goroutine style (StdinReader's lines/done channel pair);
// generalized from a single-consumer pipe to a fan-out broadcaster since
// spec.md §5 requires every subscriber to see every event.
package events

import "sync"

// Kind tags the project-wide lifecycle events layered on top of the
// per-feature agent stream (spec.md §6).
type Kind string

const (
	KindStream                   Kind = "stream"
	KindToolUse                  Kind = "tool_use"
	KindComplete                 Kind = "complete"
	KindError                    Kind = "error"
	KindFeatureStarted           Kind = "feature_started"
	KindFeatureCompleted         Kind = "feature_completed"
	KindFeatureErrored           Kind = "feature_errored"
	KindFeatureAborted           Kind = "feature_aborted"
	KindAutoModeTaskStarted      Kind = "auto_mode_task_started"
	KindAutoModeTaskComplete     Kind = "auto_mode_task_complete"
	KindSpecRegenerationProgress Kind = "spec_regeneration_progress"
	KindSuggestionsError         Kind = "suggestions_error"
	KindContextFileChanged       Kind = "context_file_changed"
	KindFeatureDirRemoved        Kind = "feature_dir_removed"
)

// Event is one item on the bus. FeatureID is empty for project-wide
// events that are not scoped to a single feature (e.g. suggestions_error).
type Event struct {
	Kind      Kind
	FeatureID string
	Payload   any
}

// subscription is one listener's unbounded mailbox. spec.md explicitly
// calls out no backpressure: a slow subscriber must not stall the
// publisher, so the buffering goroutine below grows an internal queue
// rather than blocking Publish.
type subscription struct {
	out    chan Event
	done   chan struct{}
	pushed chan Event
}

func newSubscription() *subscription {
	s := &subscription{
		out:    make(chan Event),
		done:   make(chan struct{}),
		pushed: make(chan Event, 256),
	}
	go s.pump()
	return s
}

// pump drains pushed into an ever-growing slice buffer and forwards to
// out, so a publisher blocked on a full "pushed" channel never happens in
// practice and a slow consumer only grows memory, never stalls Publish.
func (s *subscription) pump() {
	var queue []Event
	for {
		if len(queue) == 0 {
			select {
			case ev := <-s.pushed:
				queue = append(queue, ev)
			case <-s.done:
				close(s.out)
				return
			}
			continue
		}
		select {
		case ev := <-s.pushed:
			queue = append(queue, ev)
		case s.out <- queue[0]:
			queue = queue[1:]
		case <-s.done:
			close(s.out)
			return
		}
	}
}

func (s *subscription) publish(ev Event) {
	select {
	case s.pushed <- ev:
	case <-s.done:
	}
}

func (s *subscription) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// Bus is a fan-out broadcaster: every event Published is delivered to
// every currently-subscribed channel, in publish order per subscriber.
type Bus struct {
	mu   sync.Mutex
	subs map[int]*subscription
	next int
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscription is a handle a caller ranges over to receive events, and
// must call Close on once it is done consuming.
type Subscription struct {
	C   <-chan Event
	id  int
	bus *Bus
}

// Close unsubscribes and releases the subscription's goroutine.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new listener and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := newSubscription()
	b.subs[id] = sub
	return &Subscription{C: sub.out, id: id, bus: b}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish delivers ev to every current subscriber. Never blocks on a slow
// consumer (spec.md §5).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.publish(ev)
	}
}

// Close tears down every subscription, for use during process shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.close()
	}
	b.subs = make(map[int]*subscription)
}
