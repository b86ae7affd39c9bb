package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewMemorySink(16)
	d := NewDispatcher(sink, 16, "dashboard", testLogger())

	d.Record(Event{Kind: KindLoginSucceeded, Actor: "a@x.com"})
	d.Record(Event{Kind: KindLogout, Actor: "a@x.com", Origin: "elsewhere"})
	d.Close()

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, KindLoginSucceeded, events[0].Kind)
	assert.Equal(t, "dashboard", events[0].Origin, "empty origin takes the dispatcher's")
	assert.Equal(t, KindLogout, events[1].Kind)
	assert.Equal(t, "elsewhere", events[1].Origin, "explicit origin wins")
	assert.False(t, events[0].Time.IsZero(), "time is stamped on record")
	assert.Zero(t, d.Dropped())
}

// blockingSink holds the worker until released so the buffer can fill.
type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Write(context.Context, Event) error {
	<-s.release
	return nil
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(sink, 2, "admin", testLogger())

	// One event occupies the worker, two fill the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Record(Event{Kind: KindGuardDenied})
	}
	assert.Positive(t, d.Dropped())

	close(sink.release)
	d.Close()
}

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("sink down") }

func TestDispatcherSurvivesSinkFailure(t *testing.T) {
	d := NewDispatcher(failingSink{}, 4, "admin", testLogger())
	d.Record(Event{Kind: KindLoginFailed})
	d.Close()
	assert.Zero(t, d.Dropped(), "a failing sink still consumes the queue")
}

func TestMemorySinkEvictsOldest(t *testing.T) {
	sink := NewMemorySink(3)
	for i := 0; i < 5; i++ {
		err := sink.Write(context.Background(), Event{
			Kind: KindRelayCaptured,
			Time: time.Unix(int64(i), 0),
		})
		require.NoError(t, err)
	}

	events := sink.Events()
	require.Len(t, events, 3)
	assert.Equal(t, time.Unix(2, 0), events[0].Time)
	assert.Equal(t, time.Unix(4, 0), events[2].Time)
}
