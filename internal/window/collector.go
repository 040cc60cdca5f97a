package window

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/tablescan-worker/internal/logging"
)

// Collector walks channel history to build message windows.
type Collector struct {
	history  History
	maxPages int
	logger   *logging.Logger
}

// NewCollector creates a collector. maxPages below 1 uses DefaultMaxPages.
func NewCollector(history History, maxPages int, logger *logging.Logger) *Collector {
	if maxPages < 1 {
		maxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = logging.NewLogger("window")
	}
	return &Collector{history: history, maxPages: maxPages, logger: logger}
}

// Collect resolves the anchor and returns the window described by spec.
func (c *Collector) Collect(ctx context.Context, spec Spec) (*Result, error) {
	if spec.ChannelID == "" {
		return nil, fmt.Errorf("channel ID is required")
	}

	dir := spec.Direction
	if dir == "" {
		dir = Backward
	}
	if dir != Forward && dir != Backward {
		return nil, fmt.Errorf("invalid direction %q", dir)
	}
	spec.Direction = dir

	anchor, err := c.resolveAnchor(ctx, spec)
	if err != nil {
		return nil, err
	}

	return c.CollectFrom(ctx, *anchor, spec)
}

func (c *Collector) resolveAnchor(ctx context.Context, spec Spec) (*Message, error) {
	if spec.AnchorID != "" {
		m, err := c.history.Message(ctx, spec.ChannelID, spec.AnchorID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch anchor message %s: %w", spec.AnchorID, err)
		}
		return m, nil
	}

	m, err := c.history.Latest(ctx, spec.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest message: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("channel %s has no messages", spec.ChannelID)
	}
	return m, nil
}

// CollectFrom builds the window around an already resolved anchor.
func (c *Collector) CollectFrom(ctx context.Context, anchor Message, spec Spec) (*Result, error) {
	count := spec.Count
	if count < 1 {
		count = 1
	}
	dir := spec.Direction
	if dir == "" {
		dir = Backward
	}

	res := &Result{Anchor: anchor}
	msgs := []Message{anchor}
	seen := map[string]struct{}{anchor.ID: {}}
	cursor := anchor.ID

	for len(msgs) < count {
		if res.Pages >= c.maxPages {
			res.PageLimitHit = true
			c.logger.Warn("History page limit reached", "channel", spec.ChannelID, "pages", res.Pages, "collected", len(msgs))
			break
		}

		batch, err := c.history.Page(ctx, spec.ChannelID, cursor, dir, PageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history page %d: %w", res.Pages+1, err)
		}
		res.Pages++

		exhausted := len(batch) < PageSize
		ordered := nearestFirst(batch, dir)

		if spec.BoundaryID != "" {
			if i := indexOf(ordered, spec.BoundaryID); i >= 0 {
				ordered = ordered[:i]
				res.ReachedBoundary = true
			}
		}

		for _, m := range ordered {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			msgs = append(msgs, m)
		}

		if res.ReachedBoundary || exhausted || len(ordered) == 0 {
			break
		}
		cursor = ordered[len(ordered)-1].ID
	}

	sortChronological(msgs)
	msgs = keepNearest(msgs, count, dir)

	if spec.Minutes > 0 {
		span := time.Duration(spec.Minutes) * time.Minute
		if dir == Forward {
			res.Start, res.End = anchor.Timestamp, anchor.Timestamp.Add(span)
		} else {
			res.Start, res.End = anchor.Timestamp.Add(-span), anchor.Timestamp
		}
		msgs = within(msgs, res.Start, res.End)
	}

	res.Messages = msgs

	c.logger.Debug("Collected message window",
		"channel", spec.ChannelID, "anchor", anchor.ID, "direction", dir,
		"count", count, "minutes", spec.Minutes, "messages", len(msgs), "pages", res.Pages)

	return res, nil
}

// nearestFirst orders a batch starting with the message closest to the
// cursor: ascending when scanning forward, descending when backward.
func nearestFirst(batch []Message, dir Direction) []Message {
	out := make([]Message, len(batch))
	copy(out, batch)
	sortChronological(out)
	if dir == Backward {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// keepNearest trims an ascending list to the count messages closest to the
// anchor.
func keepNearest(msgs []Message, count int, dir Direction) []Message {
	if len(msgs) <= count {
		return msgs
	}
	if dir == Forward {
		return msgs[:count]
	}
	return msgs[len(msgs)-count:]
}

func within(msgs []Message, start, end time.Time) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Timestamp.Before(start) || m.Timestamp.After(end) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func indexOf(msgs []Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
