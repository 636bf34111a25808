package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWatcher_Add(t *testing.T) {
	watcher := NewWatcher[int]()

	watcher.Add(newFakeObserver())
	require.Equal(t, 1, watcher.Len())

	obs := newFakeObserver()
	watcher.Add(obs)
	require.Equal(t, 2, watcher.Len())

	watcher.Add(obs)
	require.Equal(t, 2, watcher.Len())
}

func TestWatcher_Remove(t *testing.T) {
	watcher := NewWatcher[int]()
	watcher.Add(newFakeObserver())

	obs := newFakeObserver()
	watcher.Add(obs)
	require.Equal(t, 2, watcher.Len())

	watcher.Remove(obs)
	require.Equal(t, 1, watcher.Len())

	watcher.Remove(obs)
	require.Equal(t, 1, watcher.Len())
}

func TestWatcher_Notify(t *testing.T) {
	watcher := NewWatcher[int]()

	obs := newFakeObserver()
	watcher.Add(obs)

	watcher.Notify(42)
	require.Equal(t, 42, <-obs.ch)

	watcher.Remove(obs)
	watcher.Notify(43)
	require.Len(t, obs.ch, 0)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeObserver struct {
	ch chan int
}

func (o fakeObserver) NotifyCallback(evt int) {
	o.ch <- evt
}

func newFakeObserver() fakeObserver {
	return fakeObserver{
		ch: make(chan int, 1),
	}
}
