package co

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalWakesOneWaiter(t *testing.T) {
	var s Signal
	w := s.NewWaiter()

	s.Signal("test")

	select {
	case info := <-w.C():
		assert.Equal(t, "test", info.Source)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestBroadcastWakesAllWaiters(t *testing.T) {
	var s Signal
	w1 := s.NewWaiter()
	w2 := s.NewWaiter()

	s.Broadcast("tick")

	for _, w := range []Waiter{w1, w2} {
		select {
		case info := <-w.C():
			assert.Equal(t, "tick", info.Source)
		case <-time.After(time.Second):
			t.Fatal("waiter was not woken")
		}
	}
}
