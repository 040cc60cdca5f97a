/**
 * Message window collection
 *
 * Selects the bounded run of channel history, starting at an anchor message,
 * whose attachments feed table reconstruction. The window is bounded by a
 * message count, an optional time span and an optional boundary message;
 * the result satisfies all of them at once.
 */

package window

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// PageSize is the largest batch the history API returns. A shorter batch
// means history is exhausted.
const PageSize = 100

// DefaultMaxPages caps pagination when no limit is configured.
const DefaultMaxPages = 50

// Direction selects which side of the anchor is scanned.
type Direction string

const (
	Forward  Direction = "forward"  // newer than the anchor
	Backward Direction = "backward" // older than the anchor
)

// ParseDirection accepts "forward"/"backward" and the short forms
// "after"/"before". Empty defaults to Backward.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "backward", "before":
		return Backward, nil
	case "forward", "after":
		return Forward, nil
	default:
		return "", fmt.Errorf("invalid direction %q", s)
	}
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID          string
	URL         string
	Filename    string
	ContentType string
	Size        int
}

// Message is the subset of a chat message the collector needs.
type Message struct {
	ID          string
	ChannelID   string
	Timestamp   time.Time
	Attachments []Attachment
}

// Spec bounds a history window.
type Spec struct {
	ChannelID string

	// AnchorID is the message the scan starts from. Empty means the most
	// recent message of the channel.
	AnchorID string

	// BoundaryID stops the scan when met. The boundary message itself is
	// not part of the result.
	BoundaryID string

	Direction Direction

	// Count is the maximum number of messages, anchor included. Values
	// below 1 mean 1.
	Count int

	// Minutes limits the result to a span measured from the anchor
	// timestamp. Zero or less means no time limit.
	Minutes int
}

// History is the chat platform's message API.
type History interface {
	// Message returns a single message.
	Message(ctx context.Context, channelID, messageID string) (*Message, error)

	// Latest returns the most recent message of a channel.
	Latest(ctx context.Context, channelID string) (*Message, error)

	// Page returns up to limit messages strictly before or after cursorID,
	// in any order.
	Page(ctx context.Context, channelID, cursorID string, dir Direction, limit int) ([]Message, error)
}

// Result is a collected window.
type Result struct {
	// Messages in ascending chronological order.
	Messages []Message

	Anchor Message

	// Start and End are the time bounds applied; zero without Minutes.
	Start time.Time
	End   time.Time

	Pages           int
	ReachedBoundary bool
	// PageLimitHit reports that pagination stopped at the page cap.
	PageLimitHit bool
}

// IDs returns the message identifiers in result order.
func (r *Result) IDs() []string {
	ids := make([]string, len(r.Messages))
	for i, m := range r.Messages {
		ids[i] = m.ID
	}
	return ids
}

// chronological orders by timestamp, then by snowflake-style numeric ID.
func chronological(a, b Message) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	if len(a.ID) != len(b.ID) {
		return len(a.ID) < len(b.ID)
	}
	return a.ID < b.ID
}

func sortChronological(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return chronological(msgs[i], msgs[j]) })
}
