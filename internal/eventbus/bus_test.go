package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishOrder(t *testing.T) {
	b := New[string]()
	var got []string
	b.Subscribe(func(s string) { got = append(got, "a:"+s) })
	b.Subscribe(func(s string) { got = append(got, "b:"+s) })

	b.Publish("x")
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestUnsubscribe(t *testing.T) {
	b := New[int]()
	count := 0
	sub := b.Subscribe(func(int) { count++ })
	require.Equal(t, 1, b.SubscriberCount())

	b.Publish(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	b.Publish(2)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestHandlerMayUnsubscribeDuringPublish(t *testing.T) {
	b := New[int]()
	var sub Subscription
	calls := 0
	sub = b.Subscribe(func(int) {
		calls++
		sub.Unsubscribe()
	})

	b.Publish(1)
	b.Publish(2)
	assert.Equal(t, 1, calls)
}

func TestClose(t *testing.T) {
	b := New[int]()
	calls := 0
	b.Subscribe(func(int) { calls++ })
	b.Close()
	b.Publish(1)

	late := b.Subscribe(func(int) { calls++ })
	b.Publish(2)
	late.Unsubscribe()

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, b.SubscriberCount())
}
