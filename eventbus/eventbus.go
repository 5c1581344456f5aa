// Package eventbus implements a per-job progress fan-out: a bounded ring
// buffer of recent events plus a set of live subscribers, with
// snapshot-then-tail semantics on subscribe.
package eventbus

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Event is a single progress frame, matching the wire shape published over
// the job events stream.
type Event struct {
	Seq         uint64    `json:"seq"`
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Phase       string    `json:"phase"`
	Percent     int       `json:"percent"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// subscriberQueueSize is the buffered channel depth per subscriber; a
// subscriber whose consumption falls behind this many unread events is
// dropped rather than blocking Publish.
const subscriberQueueSize = 64

// Clock is swappable in tests for deterministic Event.Timestamp values.
var Clock clock.Clock = clock.New()

type jobTopic struct {
	mu          sync.Mutex
	ring        []Event
	ringSize    int
	nextSeq     uint64
	subscribers map[chan Event]struct{}
}

func newJobTopic(ringSize int) *jobTopic {
	return &jobTopic{ringSize: ringSize, subscribers: make(map[chan Event]struct{})}
}

// Bus holds one bounded-ring topic per job, created lazily on first publish
// or subscribe and never explicitly removed (a finished job's topic is
// harmless dead weight reclaimed at process restart; jobs are not high
// enough cardinality within a process lifetime to warrant GC).
type Bus struct {
	mu       sync.Mutex
	topics   map[string]*jobTopic
	ringSize int
}

func New(ringSize int) *Bus {
	if ringSize <= 0 {
		ringSize = 128
	}
	return &Bus{topics: make(map[string]*jobTopic), ringSize: ringSize}
}

func (b *Bus) topic(jobID string) *jobTopic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = newJobTopic(b.ringSize)
		b.topics[jobID] = t
	}
	return t
}

// Publish appends an event to jobID's ring and fans it out to every live
// subscriber. A subscriber whose queue is still full is too far behind to
// catch up without gaps, so it is unregistered and its channel closed rather
// than skipped in place; the caller sees the channel close and must
// Subscribe again, which redelivers the latest ring snapshot before
// resuming the tail.
func (b *Bus) Publish(jobID, status, phase string, percent int, description string) Event {
	t := b.topic(jobID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextSeq++
	ev := Event{
		Seq:         t.nextSeq,
		JobID:       jobID,
		Status:      status,
		Phase:       phase,
		Percent:     percent,
		Description: description,
		Timestamp:   Clock.Now().UTC(),
	}

	t.ring = append(t.ring, ev)
	if len(t.ring) > t.ringSize {
		t.ring = t.ring[len(t.ring)-t.ringSize:]
	}

	for ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
			delete(t.subscribers, ch)
			close(ch)
		}
	}
	return ev
}

// Subscription is returned by Subscribe: Snapshot is the most recent event
// (if any) delivered immediately, Events is the live tail.
type Subscription struct {
	Snapshot *Event
	Events   <-chan Event
	cancel   func()
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers for jobID's live event tail and returns the latest
// ring entry (if the job has published anything yet) as an immediate
// snapshot, so a new subscriber gets the current state right away, then the
// live tail.
func (b *Bus) Subscribe(jobID string) *Subscription {
	t := b.topic(jobID)
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Event, subscriberQueueSize)
	t.subscribers[ch] = struct{}{}

	var snap *Event
	if n := len(t.ring); n > 0 {
		last := t.ring[n-1]
		snap = &last
	}

	return &Subscription{
		Snapshot: snap,
		Events:   ch,
		cancel: func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subscribers[ch]; ok {
				delete(t.subscribers, ch)
				close(ch)
			}
		},
	}
}

// Snapshot returns the most recent event published for jobID, if any.
func (b *Bus) Snapshot(jobID string) (Event, bool) {
	t := b.topic(jobID)
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring) == 0 {
		return Event{}, false
	}
	return t.ring[len(t.ring)-1], true
}
