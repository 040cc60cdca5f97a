/**
 * Discord Client for the table scan worker
 *
 * Reads channel history for the message window collector and uploads
 * finished exports back to the channel. Requests are paced with a token
 * bucket on top of discordgo's own per-route rate limit handling, so a long
 * pagination run does not starve the bot's other traffic.
 */

package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/adverant/nexus/tablescan-worker/internal/logging"
	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

// ErrMessageNotFound is returned when a message does not exist or is not visible to the bot
var ErrMessageNotFound = errors.New("message not found")

// DiscordClient handles communication with the Discord REST API
type DiscordClient struct {
	session *discordgo.Session
	limiter *rate.Limiter
	logger  *logging.Logger
}

// DiscordConfig holds Discord client configuration
type DiscordConfig struct {
	Token      string
	RatePerSec float64 // <= 0 disables local pacing
	HTTPClient *http.Client
}

// NewDiscordClient creates a new Discord client
func NewDiscordClient(cfg *DiscordConfig, logger *logging.Logger) (*DiscordClient, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if cfg.HTTPClient != nil {
		session.Client = cfg.HTTPClient
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}

	return &DiscordClient{
		session: session,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Message implements window.History
func (c *DiscordClient) Message(ctx context.Context, channelID, messageID string) (*window.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		if isUnknownMessage(err) {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		return nil, fmt.Errorf("failed to fetch message %s: %w", messageID, err)
	}

	msg := messageFromDiscord(m)
	return &msg, nil
}

// Latest implements window.History
func (c *DiscordClient) Latest(ctx context.Context, channelID string) (*window.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	msgs, err := c.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest message: %w", err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	msg := messageFromDiscord(msgs[0])
	return &msg, nil
}

// Page implements window.History
func (c *DiscordClient) Page(ctx context.Context, channelID, cursorID string, dir window.Direction, limit int) ([]window.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var before, after string
	if dir == window.Forward {
		after = cursorID
	} else {
		before = cursorID
	}

	msgs, err := c.session.ChannelMessages(channelID, limit, before, after, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history page: %w", err)
	}

	out := make([]window.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageFromDiscord(m))
	}

	c.logger.Debug("Fetched history page",
		"channel", channelID, "cursor", cursorID, "direction", string(dir), "messages", len(out))

	return out, nil
}

// PostFile uploads content to the channel as an attachment
func (c *DiscordClient) PostFile(ctx context.Context, channelID, filename string, content []byte, message string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: message,
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "text/csv",
			Reader:      bytes.NewReader(content),
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", filename, err)
	}

	c.logger.Info("Export posted to channel", "channel", channelID, "filename", filename, "bytes", len(content))
	return nil
}

func messageFromDiscord(m *discordgo.Message) window.Message {
	msg := window.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		Timestamp: m.Timestamp,
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, window.Attachment{
			ID:          a.ID,
			URL:         a.URL,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return msg
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
		return true
	}
	return restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
