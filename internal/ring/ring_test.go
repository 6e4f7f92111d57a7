package ring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPlayBackgroundStopsCleanly(t *testing.T) {
	b := OpenNoop(zerolog.Nop())
	stop := b.PlayBackground()
	time.Sleep(50 * time.Millisecond)
	stop()
}

func TestSetLineIsNoopWithoutAGPIOLine(t *testing.T) {
	b := OpenNoop(zerolog.Nop())
	// must not panic when no line is attached.
	b.setLine(1)
	b.setLine(0)
}
