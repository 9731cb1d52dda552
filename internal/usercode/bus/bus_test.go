package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishSubscribe(t *testing.T) {
	t.Parallel()

	b := New(nil)

	var first, second []string
	unsubscribe := b.Subscribe(func(key string) { first = append(first, key) })
	b.Subscribe(func(key string) { second = append(second, key) })

	b.Publish("/data/global/actions/a.star")
	unsubscribe()
	b.Publish("/data/global/hooks/x/b.star")

	assert.Equal(t, []string{"/data/global/actions/a.star"}, first)
	assert.Equal(t, []string{"/data/global/actions/a.star", "/data/global/hooks/x/b.star"}, second)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	t.Parallel()

	b := New(nil)
	assert.NotPanics(t, func() { b.Publish("anything") })
}

func TestBus_DeliveryOrder(t *testing.T) {
	t.Parallel()

	b := New(nil)
	var order []int
	for i := range 5 {
		b.Subscribe(func(string) { order = append(order, i) })
	}
	b.Publish("k")
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
