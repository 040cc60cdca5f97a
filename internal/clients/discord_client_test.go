package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

// newTestDiscord points discordgo's channel endpoints at a local server.
func newTestDiscord(t *testing.T, handler http.HandlerFunc) *DiscordClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	orig := discordgo.EndpointChannels
	discordgo.EndpointChannels = srv.URL + "/channels/"
	t.Cleanup(func() { discordgo.EndpointChannels = orig })

	c, err := NewDiscordClient(&DiscordConfig{Token: "test", HTTPClient: srv.Client()}, nil)
	require.NoError(t, err)
	return c
}

const pageJSON = `[
  {"id": "103", "channel_id": "c1", "timestamp": "2025-03-01T09:03:00+00:00", "attachments": []},
  {"id": "102", "channel_id": "c1", "timestamp": "2025-03-01T09:02:00+00:00",
   "attachments": [{"id": "a1", "url": "https://cdn.test/shot.png", "filename": "shot.png", "content_type": "image/png", "size": 2048}]}
]`

func TestDiscordPageBackward(t *testing.T) {
	var query string
	c := newTestDiscord(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/c1/messages", r.URL.Path)
		require.Equal(t, "Bot test", r.Header.Get("Authorization"))
		query = r.URL.RawQuery
		io.WriteString(w, pageJSON)
	})

	msgs, err := c.Page(context.Background(), "c1", "104", window.Backward, 100)
	require.NoError(t, err)
	require.Contains(t, query, "before=104")
	require.Contains(t, query, "limit=100")
	require.NotContains(t, query, "after=")

	require.Len(t, msgs, 2)
	require.Equal(t, "102", msgs[1].ID)
	require.Equal(t, time.Date(2025, 3, 1, 9, 2, 0, 0, time.UTC), msgs[1].Timestamp.UTC())
	require.Equal(t, []window.Attachment{{
		ID: "a1", URL: "https://cdn.test/shot.png", Filename: "shot.png", ContentType: "image/png", Size: 2048,
	}}, msgs[1].Attachments)
}

func TestDiscordPageForward(t *testing.T) {
	var query string
	c := newTestDiscord(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		io.WriteString(w, "[]")
	})

	msgs, err := c.Page(context.Background(), "c1", "100", window.Forward, 100)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Contains(t, query, "after=100")
	require.NotContains(t, query, "before=")
}

func TestDiscordLatest(t *testing.T) {
	c := newTestDiscord(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		io.WriteString(w, pageJSON[:strings.Index(pageJSON, "},")+1]+"]")
	})

	m, err := c.Latest(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "103", m.ID)
}

func TestDiscordMessageNotFound(t *testing.T) {
	c := newTestDiscord(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/channels/c1/messages/999", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message": "Unknown Message", "code": 10008}`)
	})

	_, err := c.Message(context.Background(), "c1", "999")
	require.ErrorIs(t, err, ErrMessageNotFound)
}

func TestDiscordPostFile(t *testing.T) {
	var body string
	c := newTestDiscord(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		io.WriteString(w, `{"id": "500", "channel_id": "c1", "timestamp": "2025-03-01T10:00:00+00:00"}`)
	})

	err := c.PostFile(context.Background(), "c1", "scores.csv", []byte("a,b\n"), "1 rows from 1 images")
	require.NoError(t, err)
	require.Contains(t, body, `filename="scores.csv"`)
	require.Contains(t, body, "a,b\n")
	require.Contains(t, body, "1 rows from 1 images")
}

func TestNewDiscordClientRequiresToken(t *testing.T) {
	_, err := NewDiscordClient(&DiscordConfig{}, nil)
	require.Error(t, err)
}
