package phone

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/config"
)

func newTestPhone(t *testing.T) *Phone {
	t.Helper()
	cfg := config.Default()
	cfg.T9CommitTimeout = 30 * time.Millisecond
	return &Phone{log: zerolog.Nop(), cfg: cfg}
}

func TestCaptureT9FieldCommitsOnSentinel(t *testing.T) {
	p := newTestPhone(t)
	in := make(chan rune, 8)
	in <- '4'
	in <- '4'
	in <- '0'

	field, err := p.captureT9Field(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "h", field)
}

func TestCaptureT9FieldCommitsPendingLetterOnTimeout(t *testing.T) {
	p := newTestPhone(t)
	in := make(chan rune)

	type result struct {
		field string
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		field, err := p.captureT9Field(context.Background(), in)
		resultCh <- result{field, err}
	}()

	in <- '2'
	// Past T9CommitTimeout, the pending 'a' commits on its own; sending
	// '0' afterward (fresh state, no pending letter) ends the field
	// without appending anything further.
	time.Sleep(3 * p.cfg.T9CommitTimeout)
	in <- '0'

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.Equal(t, "a", r.field)
	case <-time.After(time.Second):
		t.Fatal("captureT9Field did not return")
	}
}

func TestCaptureT9FieldReturnsErrOnClosedStream(t *testing.T) {
	p := newTestPhone(t)
	in := make(chan rune)
	close(in)

	_, err := p.captureT9Field(context.Background(), in)
	require.Error(t, err)
}

func TestCaptureT9FieldRespectsContextCancellation(t *testing.T) {
	p := newTestPhone(t)
	p.cfg.T9CommitTimeout = time.Hour
	in := make(chan rune)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.captureT9Field(ctx, in)
	require.ErrorIs(t, err, context.Canceled)
}
