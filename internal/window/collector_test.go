package window

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeHistory serves a channel of n messages one minute apart, IDs 1..n.
type fakeHistory struct {
	msgs  []Message
	pages int
	err   error
}

func newFakeHistory(n int) *fakeHistory {
	h := &fakeHistory{}
	for i := 1; i <= n; i++ {
		h.msgs = append(h.msgs, Message{
			ID:        fmt.Sprint(i),
			ChannelID: "chan",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return h
}

func (h *fakeHistory) index(id string) int {
	for i, m := range h.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (h *fakeHistory) Message(_ context.Context, _, id string) (*Message, error) {
	i := h.index(id)
	if i < 0 {
		return nil, errors.New("unknown message")
	}
	m := h.msgs[i]
	return &m, nil
}

func (h *fakeHistory) Latest(_ context.Context, _ string) (*Message, error) {
	if len(h.msgs) == 0 {
		return nil, nil
	}
	m := h.msgs[len(h.msgs)-1]
	return &m, nil
}

// Page answers newest first, like the real API.
func (h *fakeHistory) Page(_ context.Context, _, cursor string, dir Direction, limit int) ([]Message, error) {
	h.pages++
	if h.err != nil {
		return nil, h.err
	}
	i := h.index(cursor)
	var sel []Message
	if dir == Backward {
		lo := i - limit
		if lo < 0 {
			lo = 0
		}
		sel = append(sel, h.msgs[lo:i]...)
	} else {
		hi := i + 1 + limit
		if hi > len(h.msgs) {
			hi = len(h.msgs)
		}
		sel = append(sel, h.msgs[i+1:hi]...)
	}
	for a, b := 0, len(sel)-1; a < b; a, b = a+1, b-1 {
		sel[a], sel[b] = sel[b], sel[a]
	}
	return sel, nil
}

func ids(from, to int) []string {
	var out []string
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprint(i))
	}
	return out
}

func TestCollectCountBounds(t *testing.T) {
	h := newFakeHistory(500)
	c := NewCollector(h, 0, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		spec Spec
		want []string
	}{
		{
			name: "count defaults to one",
			spec: Spec{ChannelID: "chan", AnchorID: "300", Direction: Backward},
			want: []string{"300"},
		},
		{
			name: "negative count coerced",
			spec: Spec{ChannelID: "chan", AnchorID: "300", Direction: Forward, Count: -4},
			want: []string{"300"},
		},
		{
			name: "backward keeps anchor and older",
			spec: Spec{ChannelID: "chan", AnchorID: "300", Direction: Backward, Count: 5},
			want: ids(296, 300),
		},
		{
			name: "forward keeps anchor and newer",
			spec: Spec{ChannelID: "chan", AnchorID: "300", Direction: Forward, Count: 5},
			want: ids(300, 304),
		},
		{
			name: "spans several pages",
			spec: Spec{ChannelID: "chan", AnchorID: "450", Direction: Backward, Count: 250},
			want: ids(201, 450),
		},
		{
			name: "history exhausted before count",
			spec: Spec{ChannelID: "chan", AnchorID: "3", Direction: Backward, Count: 10},
			want: ids(1, 3),
		},
		{
			name: "latest message is default anchor",
			spec: Spec{ChannelID: "chan", Direction: Backward, Count: 3},
			want: ids(498, 500),
		},
		{
			name: "empty history after anchor",
			spec: Spec{ChannelID: "chan", AnchorID: "500", Direction: Forward, Count: 3},
			want: []string{"500"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Collect(ctx, tc.spec)
			require.NoError(t, err)
			require.Equal(t, tc.want, res.IDs())

			count := tc.spec.Count
			if count < 1 {
				count = 1
			}
			require.LessOrEqual(t, len(res.Messages), count)
		})
	}
}

func TestCollectBoundaryExcluded(t *testing.T) {
	h := newFakeHistory(300)
	c := NewCollector(h, 0, nil)

	res, err := c.Collect(context.Background(), Spec{
		ChannelID: "chan", AnchorID: "250", BoundaryID: "245", Direction: Backward, Count: 50,
	})
	require.NoError(t, err)
	require.True(t, res.ReachedBoundary)
	require.Equal(t, ids(246, 250), res.IDs())
	require.Equal(t, 1, res.Pages)
}

func TestCollectBoundaryNeverMet(t *testing.T) {
	h := newFakeHistory(150)
	c := NewCollector(h, 0, nil)

	res, err := c.Collect(context.Background(), Spec{
		ChannelID: "chan", AnchorID: "150", BoundaryID: "9999", Direction: Backward, Count: 1000,
	})
	require.NoError(t, err)
	require.False(t, res.ReachedBoundary)
	require.Len(t, res.Messages, 150)
	require.Equal(t, 2, res.Pages)
}

func TestCollectTimeWindow(t *testing.T) {
	h := newFakeHistory(100)
	c := NewCollector(h, 0, nil)
	ctx := context.Background()

	// messages are a minute apart: only 5 messages lie within 4 minutes
	res, err := c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "50", Direction: Backward, Count: 20, Minutes: 4})
	require.NoError(t, err)
	require.Equal(t, ids(46, 50), res.IDs())

	anchor := base.Add(50 * time.Minute)
	require.Equal(t, anchor.Add(-4*time.Minute), res.Start)
	require.Equal(t, anchor, res.End)
	for _, m := range res.Messages {
		require.False(t, m.Timestamp.Before(res.Start))
		require.False(t, m.Timestamp.After(res.End))
	}

	res, err = c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "50", Direction: Forward, Count: 20, Minutes: 2})
	require.NoError(t, err)
	require.Equal(t, ids(50, 52), res.IDs())

	// count is the tighter bound
	res, err = c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "50", Direction: Forward, Count: 2, Minutes: 60})
	require.NoError(t, err)
	require.Equal(t, ids(50, 51), res.IDs())
}

func TestCollectBackwardCountAndMinutes(t *testing.T) {
	// anchor at T, messages at T-1, T-3, T-12, T-15, T-30 minutes
	anchorTime := base.Add(time.Hour)
	h := &fakeHistory{}
	for i, back := range []int{30, 15, 12, 3, 1, 0} {
		h.msgs = append(h.msgs, Message{
			ID:        fmt.Sprint(i + 1),
			ChannelID: "chan",
			Timestamp: anchorTime.Add(-time.Duration(back) * time.Minute),
		})
	}
	c := NewCollector(h, 0, nil)

	res, err := c.Collect(context.Background(), Spec{ChannelID: "chan", AnchorID: "6", Direction: Backward, Count: 5, Minutes: 10})
	require.NoError(t, err)
	require.Equal(t, []string{"4", "5", "6"}, res.IDs())
}

func TestCollectPageLimit(t *testing.T) {
	h := newFakeHistory(1000)
	c := NewCollector(h, 3, nil)

	res, err := c.Collect(context.Background(), Spec{ChannelID: "chan", AnchorID: "1000", Direction: Backward, Count: 900})
	require.NoError(t, err)
	require.True(t, res.PageLimitHit)
	require.Equal(t, 3, h.pages)
	require.Len(t, res.Messages, 301)
}

func TestCollectErrors(t *testing.T) {
	h := newFakeHistory(10)
	c := NewCollector(h, 0, nil)
	ctx := context.Background()

	_, err := c.Collect(ctx, Spec{AnchorID: "5"})
	require.Error(t, err)

	_, err = c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "5", Direction: "sideways"})
	require.Error(t, err)

	_, err = c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "missing"})
	require.Error(t, err)

	_, err = c.Collect(ctx, Spec{ChannelID: "chan"})
	require.NoError(t, err)

	_, err = NewCollector(&fakeHistory{}, 0, nil).Collect(ctx, Spec{ChannelID: "chan"})
	require.Error(t, err)

	h.err = errors.New("rate limited")
	_, err = c.Collect(ctx, Spec{ChannelID: "chan", AnchorID: "5", Count: 3})
	require.ErrorIs(t, err, h.err)
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": Backward, "before": Backward, "backward": Backward, "after": Forward, "forward": Forward} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseDirection("up")
	require.Error(t, err)
}
