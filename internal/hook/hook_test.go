package hook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversTransitionsToAllSubscribers(t *testing.T) {
	sw := newSwitch(zerolog.Nop())
	ch1, unsub1 := sw.Subscribe()
	defer unsub1()
	ch2, unsub2 := sw.Subscribe()
	defer unsub2()

	sw.publish(OFF)

	require.Equal(t, OFF, <-ch1)
	require.Equal(t, OFF, <-ch2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	sw := newSwitch(zerolog.Nop())
	ch, unsub := sw.Subscribe()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "ON", ON.String())
	require.Equal(t, "OFF", OFF.String())
}

func TestCurrentStateTracksLastPublish(t *testing.T) {
	sw := newSwitch(zerolog.Nop())
	require.Equal(t, ON, sw.CurrentState())

	sw.publish(OFF)
	require.Equal(t, OFF, sw.CurrentState())
}
