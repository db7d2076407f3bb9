package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ S string }

func TestBus_DispatchByType(t *testing.T) {
	b := New()
	var pings []int
	var pongs []string
	SubscribeTo(b, func(_ context.Context, e ping) { pings = append(pings, e.N) })
	SubscribeTo(b, func(_ context.Context, e pong) { pongs = append(pongs, e.S) })

	PublishTo(context.Background(), b, ping{N: 1})
	PublishTo(context.Background(), b, pong{S: "a"})
	PublishTo(context.Background(), b, ping{N: 2})

	require.Equal(t, []int{1, 2}, pings)
	require.Equal(t, []string{"a"}, pongs)
}

func TestBus_UnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	b := New()
	var got []string
	unsubA := SubscribeTo(b, func(_ context.Context, e ping) { got = append(got, "a") })
	SubscribeTo(b, func(_ context.Context, e ping) { got = append(got, "b") })

	unsubA()
	unsubA()
	PublishTo(context.Background(), b, ping{})
	require.Equal(t, []string{"b"}, got)
}

func TestGlobal_DisabledByDefault(t *testing.T) {
	Use(nil)
	t.Cleanup(func() { Use(nil) })

	called := false
	unsub := Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	unsub()
	require.False(t, called)

	Use(New())
	Subscribe(func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	require.True(t, called)
}

func TestDefault_InstallsOnce(t *testing.T) {
	Use(nil)
	t.Cleanup(func() { Use(nil) })

	b := Default()
	require.NotNil(t, b)
	require.Same(t, b, Default())

	called := false
	SubscribeTo(b, func(context.Context, ping) { called = true })
	Publish(context.Background(), ping{})
	require.True(t, called)
}
