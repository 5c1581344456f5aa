package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeBeforeAnyPublishHasNoSnapshot(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	defer sub.Close()
	require.Nil(t, sub.Snapshot)
}

func TestSubscribeAfterPublishReceivesLatestAsSnapshot(t *testing.T) {
	b := New(4)
	b.Publish("job-1", "RUNNING", "probe", 5, "probing")
	b.Publish("job-1", "RUNNING", "transcribe", 20, "transcribing")

	sub := b.Subscribe("job-1")
	defer sub.Close()
	require.NotNil(t, sub.Snapshot)
	require.Equal(t, 20, sub.Snapshot.Percent)
}

func TestSeqIsStrictlyIncreasingWithNoGaps(t *testing.T) {
	b := New(8)
	sub := b.Subscribe("job-1")
	defer sub.Close()

	b.Publish("job-1", "RUNNING", "probe", 5, "")
	b.Publish("job-1", "RUNNING", "transcribe", 20, "")
	b.Publish("job-1", "RUNNING", "score", 35, "")

	var seqs []uint64
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events:
			seqs = append(seqs, ev.Seq)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	require.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestRingBufferIsBoundedToConfiguredSize(t *testing.T) {
	b := New(2)
	for i := 0; i < 5; i++ {
		b.Publish("job-1", "RUNNING", "stage", i*10, "")
	}
	sub := b.Subscribe("job-1")
	defer sub.Close()
	require.NotNil(t, sub.Snapshot)
	require.Equal(t, 40, sub.Snapshot.Percent) // only the last 2 of 5 events survive

	topic := b.topic("job-1")
	require.Len(t, topic.ring, 2)
}

func TestSlowSubscriberIsDroppedNotBlocked(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	defer sub.Close()

	// flood well past the subscriber queue capacity without ever draining it
	for i := 0; i < subscriberQueueSize+10; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish("job-1", "RUNNING", "stage", i, "")
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber queue")
		}
	}

	// once its queue filled, the subscriber must be unregistered and its
	// channel closed rather than silently skipped in place — it has to
	// resubscribe and resync from a fresh snapshot instead of seeing a seq
	// gap.
	drained := 0
	for range sub.Events {
		drained++
	}
	require.Less(t, drained, subscriberQueueSize+10, "subscriber should have been dropped before every event was queued")

	topic := b.topic("job-1")
	topic.mu.Lock()
	remaining := len(topic.subscribers)
	topic.mu.Unlock()
	require.Zero(t, remaining, "dropped subscriber must be removed from the topic")
}

func TestCloseUnregistersSubscriber(t *testing.T) {
	b := New(4)
	sub := b.Subscribe("job-1")
	sub.Close()

	_, open := <-sub.Events
	require.False(t, open, "channel should be closed after Close")
}

func TestDistinctJobsHaveIndependentTopics(t *testing.T) {
	b := New(4)
	b.Publish("job-a", "RUNNING", "probe", 5, "")
	_, ok := b.Snapshot("job-b")
	require.False(t, ok)
}
