package eventlog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memSink) Append(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func TestEmit_PersistsAndNotifiesSubscribers(t *testing.T) {
	sink := &memSink{}
	log := New(sink)

	var notified []Kind
	log.Subscribe(func(ev Event) { notified = append(notified, ev.Kind) })

	require.NoError(t, log.Emit(context.Background(), KindNewBuild, 42, "release 11.2.0.58238"))

	require.Len(t, sink.events, 1)
	assert.Equal(t, KindNewBuild, sink.events[0].Kind)
	assert.EqualValues(t, 42, sink.events[0].ProductID)
	assert.Equal(t, []Kind{KindNewBuild}, notified)
}

func TestEmit_NilSinkStillNotifies(t *testing.T) {
	log := New(nil)
	called := false
	log.Subscribe(func(ev Event) { called = true })
	require.NoError(t, log.Emit(context.Background(), KindScanFailed, 1, "boom"))
	assert.True(t, called)
}
