package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct {
	N int
}

var (
	pingTopic = NewTopic[ping]("ping")
	pongTopic = NewTopic[string]("pong")
)

func TestEmitDeliversInRegistrationOrder(t *testing.T) {
	bus := New(nil)
	var order []string

	On(bus, pingTopic, func(p ping) { order = append(order, "first") })
	On(bus, pingTopic, func(p ping) { order = append(order, "second") })
	On(bus, pingTopic, func(p ping) { order = append(order, "third") })

	Emit(bus, pingTopic, ping{N: 1})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestNestedEmitRunsBeforeNextSubscriber(t *testing.T) {
	bus := New(nil)
	var order []string

	On(bus, pingTopic, func(p ping) {
		order = append(order, "ping-1")
		Emit(bus, pongTopic, "nested")
	})
	On(bus, pingTopic, func(p ping) { order = append(order, "ping-2") })
	On(bus, pongTopic, func(s string) { order = append(order, "pong:"+s) })

	Emit(bus, pingTopic, ping{})

	assert.Equal(t, []string{"ping-1", "pong:nested", "ping-2"}, order)
}

func TestUnsubscribe(t *testing.T) {
	bus := New(nil)
	calls := 0

	off := On(bus, pingTopic, func(p ping) { calls += p.N })
	Emit(bus, pingTopic, ping{N: 2})
	off()
	off()
	Emit(bus, pingTopic, ping{N: 5})

	assert.Equal(t, 2, calls)
	assert.Zero(t, bus.Subscribers(pingTopic.Name()))
}

func TestTopicsAreIsolated(t *testing.T) {
	bus := New(nil)
	var got []string

	On(bus, pongTopic, func(s string) { got = append(got, s) })
	Emit(bus, pingTopic, ping{N: 1})
	Emit(bus, pongTopic, "hello")

	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0])
}

func TestNilBusIsInert(t *testing.T) {
	var bus *Bus
	off := On(bus, pingTopic, func(p ping) { t.Fatal("handler must not run") })
	Emit(bus, pingTopic, ping{})
	off()
}
