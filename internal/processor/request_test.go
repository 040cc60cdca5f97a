package processor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

func TestExportRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     ExportRequest
		wantErr string
	}{
		{"channel", ExportRequest{ChannelID: "c"}, ""},
		{"images", ExportRequest{ImageURLs: []string{"https://x.test/a.png"}}, ""},
		{"nothing", ExportRequest{}, "channelId or imageUrls"},
		{"direction", ExportRequest{ChannelID: "c", Direction: "sideways"}, "invalid direction"},
		{"negative count", ExportRequest{ChannelID: "c", Count: -1}, "count must be"},
		{"huge count", ExportRequest{ChannelID: "c", Count: maxCount + 1}, "count must be"},
		{"negative minutes", ExportRequest{ChannelID: "c", Minutes: -5}, "minutes"},
		{"bad url", ExportRequest{ImageURLs: []string{"file:///etc/passwd"}}, "invalid image URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExportRequestWindowSpec(t *testing.T) {
	req := ExportRequest{
		ChannelID:         "c",
		AnchorMessageID:   "a",
		BoundaryMessageID: "b",
		Direction:         "after",
		Minutes:           15,
	}
	spec, err := req.WindowSpec()
	require.NoError(t, err)
	require.Equal(t, window.Spec{
		ChannelID:  "c",
		AnchorID:   "a",
		BoundaryID: "b",
		Direction:  window.Forward,
		Count:      1,
		Minutes:    15,
	}, spec)
}

func TestExportRequestFilename(t *testing.T) {
	require.Equal(t, "table-j1.csv", (&ExportRequest{JobID: "j1"}).Filename())
	require.Equal(t, "3月_売上.csv", (&ExportRequest{Title: "3月 売上"}).Filename())
	require.Equal(t, "a_b.csv", (&ExportRequest{Title: "../a/b"}).Filename())
}
