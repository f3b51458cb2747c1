package events_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xswap-network/xswapd/internal/core/application/events"
)

type recorder struct {
	lock   sync.Mutex
	events []events.Event
}

func (r *recorder) Deliver(e events.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func TestHubReplay(t *testing.T) {
	tests := []struct {
		name        string
		replaySize  int
		published   int
		since       uint64
		expectedSeq []uint64
	}{
		{
			name:        "within_window",
			replaySize:  5,
			published:   3,
			since:       1,
			expectedSeq: []uint64{2, 3},
		},
		{
			name:        "window_exceeded",
			replaySize:  3,
			published:   7,
			since:       0,
			expectedSeq: []uint64{5, 6, 7},
		},
		{
			name:        "exactly_full",
			replaySize:  3,
			published:   3,
			since:       0,
			expectedSeq: []uint64{1, 2, 3},
		},
		{
			name:        "up_to_date",
			replaySize:  3,
			published:   4,
			since:       4,
			expectedSeq: []uint64{},
		},
	}

	for i := range tests {
		tt := tests[i]

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hub := events.NewHub(tt.replaySize)
			for i := 0; i < tt.published; i++ {
				hub.Publish(events.New(events.PriceUpdate, "order", nil))
			}

			missed := hub.Since(tt.since)
			seqs := make([]uint64, 0, len(missed))
			for _, e := range missed {
				seqs = append(seqs, e.Seq)
			}
			require.Equal(t, tt.expectedSeq, seqs)
			require.Equal(t, uint64(tt.published), hub.LastSeq())
		})
	}
}

func TestHubSinks(t *testing.T) {
	hub := events.NewHub(10)
	hub.Publish(events.New(events.OrderCreated, "order", nil))

	rec := &recorder{}
	replayed := hub.SubscribeSince(0, rec)
	require.Equal(t, 1, replayed)

	hub.Publish(events.New(events.PriceUpdate, "order", nil))
	hub.Publish(events.New(events.OrderMatched, "order", nil))
	require.Len(t, rec.events, 3)
	for i, e := range rec.events {
		require.Equal(t, uint64(i+1), e.Seq)
	}
	require.Equal(t, events.OrderMatched, rec.events[2].Type)

	hub.RemoveSink(rec)
	hub.Publish(events.New(events.SwapSettled, "order", nil))
	require.Len(t, rec.events, 3)

	late := &recorder{}
	hub.AddSink(late)
	hub.Publish(events.NewDirect(events.SecretReleased, "order", "resolver", nil))
	require.Len(t, late.events, 1)
	require.Equal(t, "resolver", late.events[0].To)
}
