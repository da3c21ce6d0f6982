package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitPersistsEvent(t *testing.T) {
	store := events.NewMemoryStore()
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
	}

	payload := events.TierChanged{CustomerID: "c1", OldTier: "Oro", NewTier: "Platino", Balance: 11700}
	event, err := bus.Emit(context.Background(), events.TopicLoyaltyTierChange, "c1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Len(t, store.Events(events.TopicLoyaltyTierChange), 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, event.ID, notifier.events[0].ID)

	var decoded events.TierChanged
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	require.Equal(t, payload, decoded)
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{Store: events.NewMemoryStore()}
	ctx := context.Background()
	_, err := bus.Emit(ctx, " ", "c1", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicSaleCommitted, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicSaleCommitted, "s1", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicSaleCommitted, "s1", nil)
	require.Error(t, err)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	failing := &captureNotifier{err: errors.New("queue down")}
	ok := &captureNotifier{}
	bus := events.Bus{Store: events.NewMemoryStore(), Notifiers: []events.Notifier{failing, nil, ok}}
	ev, err := bus.Emit(context.Background(), events.TopicSaleCommitted, "s1", []byte(`{"total":5100}`))
	require.Error(t, err)
	require.NotEmpty(t, ev.ID, "event is persisted even when a notifier fails")
	require.Len(t, ok.events, 1)
	require.JSONEq(t, `{"total":5100}`, string(ev.Payload))
}
