package audioio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMicBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := newMicBroadcast()
	_, ch1 := b.subscribe()
	_, ch2 := b.subscribe()

	b.publish(42)

	require.Equal(t, Sample(42), <-ch1)
	require.Equal(t, Sample(42), <-ch2)
}

func TestMicBroadcastDropsOldestWhenSubscriberIsFull(t *testing.T) {
	b := newMicBroadcast()
	_, ch := b.subscribe()

	for i := 0; i < micSubBuffer+10; i++ {
		b.publish(Sample(i))
	}

	// the buffer should hold only the most recent micSubBuffer samples;
	// the oldest ones were dropped rather than blocking publish.
	last := Sample(-1)
	for i := 0; i < micSubBuffer; i++ {
		last = <-ch
	}
	require.Equal(t, Sample(micSubBuffer+10-1), last)
}

func TestMicBroadcastUnsubscribeClosesChannel(t *testing.T) {
	b := newMicBroadcast()
	id, ch := b.subscribe()
	b.unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)
}

func TestSpeakerQueueReturnsSilenceOnUnderflow(t *testing.T) {
	q := newSpeakerQueue()
	require.Equal(t, Sample(0), q.next())

	q.in <- 7
	require.Equal(t, Sample(7), q.next())
	require.Equal(t, Sample(0), q.next())
}
