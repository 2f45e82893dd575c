package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFireOrder(t *testing.T) {
	var ev Event[int]
	var got []int
	ev.Subscribe(func(_ context.Context, v int) { got = append(got, v*10) })
	ev.Subscribe(func(_ context.Context, v int) { got = append(got, v*100) })
	ev.Fire(context.Background(), 1)
	assert.Equal(t, []int{10, 100}, got)
}

func TestEventUnsubscribe(t *testing.T) {
	var ev Event[string]
	calls := 0
	unsub := ev.Subscribe(func(context.Context, string) { calls++ })
	ev.Fire(context.Background(), "a")
	unsub()
	unsub()
	ev.Fire(context.Background(), "b")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, ev.Len())
}

func TestEventPanickingHandler(t *testing.T) {
	var ev Event[int]
	reached := false
	ev.Subscribe(func(context.Context, int) { panic("boom") })
	ev.Subscribe(func(context.Context, int) { reached = true })
	assert.NotPanics(t, func() { ev.Fire(context.Background(), 1) })
	assert.True(t, reached)
}

func TestVotingVeto(t *testing.T) {
	var v Voting[string]
	notified := 0
	v.OnNotify(func(context.Context, string) { notified++ })
	v.OnVote(func(_ context.Context, s string) bool { return s != "forbidden" })

	ctx := context.Background()
	assert.True(t, v.Vote(ctx, "ok"))
	assert.False(t, v.Vote(ctx, "forbidden"))
	v.Notify(ctx, "ok")
	assert.Equal(t, 1, notified)
}

func TestVotingPanicIsVeto(t *testing.T) {
	var v Voting[int]
	v.OnVote(func(context.Context, int) bool { panic("bad voter") })
	assert.False(t, v.Vote(context.Background(), 1))
}
