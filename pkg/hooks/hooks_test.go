package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishDeliversInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []string
	b.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) { order = append(order, "first") }))
	b.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) { order = append(order, "second") }))
	b.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) { order = append(order, "third") }))

	b.Publish(context.Background(), Event{Type: EventPlanStatus})

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var count int
	id := b.Subscribe(SubscriberFunc(func(ctx context.Context, e Event) { count++ }))
	b.Publish(context.Background(), Event{})
	b.Unsubscribe(id)
	b.Publish(context.Background(), Event{})

	assert.Equal(t, 1, count)
}

func TestBus_PublishWithNoSubscribersIsANoop(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() { b.Publish(context.Background(), Event{}) })
}
