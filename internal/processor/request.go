package processor

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

// maxCount bounds a single export; larger windows would page through more
// history than the page cap allows anyway.
const maxCount = window.PageSize * window.DefaultMaxPages

// ExportRequest represents an export job. Either ChannelID or ImageURLs must
// be set; ImageURLs takes precedence.
type ExportRequest struct {
	JobID             string   `json:"jobId"`
	ChannelID         string   `json:"channelId,omitempty"`
	AnchorMessageID   string   `json:"anchorMessageId,omitempty"`
	BoundaryMessageID string   `json:"boundaryMessageId,omitempty"`
	Direction         string   `json:"direction,omitempty"`
	Count             int      `json:"count,omitempty"`
	Minutes           int      `json:"minutes,omitempty"`
	ImageURLs         []string `json:"imageUrls,omitempty"`
	Title             string   `json:"title,omitempty"`
	Header            []string `json:"header,omitempty"`
	PostToChannel     bool     `json:"postToChannel,omitempty"`
}

// Validate checks the request without touching any external system
func (r *ExportRequest) Validate() error {
	if r.ChannelID == "" && len(r.ImageURLs) == 0 {
		return fmt.Errorf("channelId or imageUrls is required")
	}
	if _, err := window.ParseDirection(r.Direction); err != nil {
		return err
	}
	if r.Count < 0 || r.Count > maxCount {
		return fmt.Errorf("count must be between 0 and %d, got %d", maxCount, r.Count)
	}
	if r.Minutes < 0 {
		return fmt.Errorf("minutes must not be negative, got %d", r.Minutes)
	}
	for _, u := range r.ImageURLs {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("invalid image URL %q", u)
		}
	}
	return nil
}

// WindowSpec converts the request into collector bounds
func (r *ExportRequest) WindowSpec() (window.Spec, error) {
	dir, err := window.ParseDirection(r.Direction)
	if err != nil {
		return window.Spec{}, err
	}
	return window.Spec{
		ChannelID:  r.ChannelID,
		AnchorID:   r.AnchorMessageID,
		BoundaryID: r.BoundaryMessageID,
		Direction:  dir,
		Count:      r.count(),
		Minutes:    r.Minutes,
	}, nil
}

func (r *ExportRequest) direction() window.Direction {
	dir, _ := window.ParseDirection(r.Direction)
	return dir
}

func (r *ExportRequest) count() int {
	if r.Count < 1 {
		return 1
	}
	return r.Count
}

var unsafeFilename = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// Filename is the name used when the CSV is downloaded or posted
func (r *ExportRequest) Filename() string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(r.Title, "_"), "_.")
	if name == "" {
		name = "table"
		if r.JobID != "" {
			name += "-" + r.JobID
		}
	}
	return name + ".csv"
}
