package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversNextTick(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(ev SequenceFinished) { got = append(got, ev.Name) })

	Emit(b, SequenceFinished{Name: "a"})
	Emit(b, SequenceFinished{Name: "b"})
	assert.Equal(t, 2, b.Pending())

	b.DispatchAll()
	assert.Empty(t, got, "nothing is delivered before the swap")

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 0, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []string{"a", "b"}, got, "events are delivered once")
}

func TestBus_TypesDispatchedInFirstEmitOrder(t *testing.T) {
	b := NewBus()
	var order []string
	Subscribe(b, func(ActiveCountChanged) { order = append(order, "count") })
	Subscribe(b, func(SequenceFinished) { order = append(order, "finished") })

	for i := 0; i < 3; i++ {
		Emit(b, SequenceFinished{})
		Emit(b, ActiveCountChanged{})
		b.SwapBuffers()
		b.DispatchAll()
	}
	assert.Equal(t, []string{
		"finished", "count",
		"finished", "count",
		"finished", "count",
	}, order)
}

func TestBus_HandlerEmitsLandInNextTick(t *testing.T) {
	b := NewBus()
	relayed := 0
	Subscribe(b, func(SequenceFinished) { Emit(b, ActiveCountChanged{Cur: 1}) })
	Subscribe(b, func(ActiveCountChanged) { relayed++ })

	Emit(b, SequenceFinished{})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 0, relayed)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, relayed)
}
