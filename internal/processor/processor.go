/**
 * Table Processor for the table scan worker
 *
 * Orchestrates one export:
 * - message window collection from channel history (or a direct image list)
 * - attachment download and text recognition per image
 * - table reconstruction per image and exact-row aggregation across images
 * - CSV rendering with an ordered metadata block
 */

package processor

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/tablescan-worker/internal/errors"
	"github.com/adverant/nexus/tablescan-worker/internal/export"
	"github.com/adverant/nexus/tablescan-worker/internal/logging"
	"github.com/adverant/nexus/tablescan-worker/internal/table"
	"github.com/adverant/nexus/tablescan-worker/internal/window"
)

// Exporter defines the interface for running export jobs
type Exporter interface {
	Export(ctx context.Context, req *ExportRequest) (*ExportResult, error)
}

// Poster uploads a finished export back to the channel
type Poster interface {
	PostFile(ctx context.Context, channelID, filename string, content []byte, message string) error
}

// Downloader fetches attachment bytes
type Downloader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Recognizer       Recognizer
	Downloader       Downloader
	Collector        *window.Collector // nil disables channel exports
	Sink             export.Sink
	Poster           Poster // nil disables posting back
	Table            table.Options
	ImageConcurrency int
	Logger           *logging.Logger
}

// ImageSource identifies one image to process
type ImageSource struct {
	MessageID string `json:"messageId,omitempty"`
	URL       string `json:"url"`
	Filename  string `json:"filename,omitempty"`
}

// ImageFailure records an image that was skipped
type ImageFailure struct {
	Source ImageSource      `json:"source"`
	Code   errors.ErrorCode `json:"code"`
	Error  string           `json:"error"`
}

// ExportResult represents the outcome of one export
type ExportResult struct {
	Rows       table.Table
	CSV        []byte
	Filename   string
	MessageIDs []string
	Images     int
	Failures   []ImageFailure
	Metadata   []export.Meta
	Posted     bool
	Duration   time.Duration
}

// TableProcessor runs exports
type TableProcessor struct {
	recognizer  Recognizer
	downloader  Downloader
	collector   *window.Collector
	sink        export.Sink
	poster      Poster
	options     table.Options
	concurrency int
	logger      *logging.Logger
	now         func() time.Time
}

// NewTableProcessor creates a new table processor
func NewTableProcessor(cfg *ProcessorConfig) (*TableProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}

	sink := cfg.Sink
	if sink == nil {
		sink = export.NewCSVSink()
	}
	concurrency := cfg.ImageConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("processor")
	}

	return &TableProcessor{
		recognizer:  cfg.Recognizer,
		downloader:  cfg.Downloader,
		collector:   cfg.Collector,
		sink:        sink,
		poster:      cfg.Poster,
		options:     cfg.Table,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Export processes a request through the complete pipeline
func (p *TableProcessor) Export(ctx context.Context, req *ExportRequest) (*ExportResult, error) {
	startTime := time.Now()

	if err := req.Validate(); err != nil {
		return nil, errors.NewInvalidRequestError(req.JobID, err.Error())
	}

	log := p.logger.With("job_id", req.JobID)
	var (
		sources []ImageSource
		win     *window.Result
	)

	if len(req.ImageURLs) > 0 {
		for _, u := range req.ImageURLs {
			sources = append(sources, ImageSource{URL: u, Filename: path.Base(u)})
		}
	} else {
		if p.collector == nil {
			return nil, errors.NewInvalidRequestError(req.JobID, "channel exports are not configured")
		}
		spec, err := req.WindowSpec()
		if err != nil {
			return nil, errors.NewInvalidRequestError(req.JobID, err.Error())
		}
		win, err = p.collector.Collect(ctx, spec)
		if err != nil {
			return nil, errors.NewHistoryFailedError(req.JobID, req.ChannelID, err)
		}
		sources = ImageSources(win.Messages)
		log.Info("Collected message window",
			"channel", req.ChannelID, "anchor", win.Anchor.ID,
			"messages", len(win.Messages), "images", len(sources), "pages", win.Pages)

		if len(sources) == 0 {
			return nil, errors.NewNoAttachmentsError(req.JobID, len(win.Messages))
		}
	}

	rows, failures, err := p.ProcessImages(ctx, req.JobID, sources)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{
		Rows:     rows,
		Images:   len(sources),
		Failures: failures,
		Filename: req.Filename(),
	}
	if win != nil {
		result.MessageIDs = win.IDs()
	}

	result.Metadata = p.metadata(req, win, result)
	result.CSV, err = export.Bytes(p.sink, rows.Strings(), result.Metadata, req.Header)
	if err != nil {
		return nil, errors.NewSinkFailedError(req.JobID, err)
	}

	if req.PostToChannel && req.ChannelID != "" && p.poster != nil {
		msg := fmt.Sprintf("%d rows from %d images", len(rows), len(sources)-len(failures))
		if err := p.poster.PostFile(ctx, req.ChannelID, result.Filename, result.CSV, msg); err != nil {
			return nil, errors.NewSinkFailedError(req.JobID, fmt.Errorf("failed to post export: %w", err))
		}
		result.Posted = true
	}

	result.Duration = time.Since(startTime)
	log.Info("Export completed",
		"rows", len(rows), "images", len(sources), "skipped_images", len(failures),
		"duration_ms", result.Duration.Milliseconds())

	return result, nil
}

// ProcessImages reconstructs a table from every source and aggregates the
// rows in source order. Images that cannot be downloaded or recognized are
// skipped and reported as failures.
func (p *TableProcessor) ProcessImages(ctx context.Context, jobID string, sources []ImageSource) (table.Table, []ImageFailure, error) {
	if len(sources) == 0 {
		return nil, nil, errors.NewNoAttachmentsError(jobID, 0)
	}

	tables := make([]table.Table, len(sources))
	failed := make([]*ImageFailure, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			t, perr := p.processImage(gctx, jobID, src)
			if perr != nil {
				if err := gctx.Err(); err != nil {
					return err
				}
				failed[i] = &ImageFailure{Source: src, Code: perr.Code, Error: perr.Error()}
				p.logger.Warn("Skipping image", "job_id", jobID, "url", src.URL, "code", string(perr.Code), "error", perr.Error())
				return nil
			}
			tables[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var failures []ImageFailure
	for _, f := range failed {
		if f != nil {
			failures = append(failures, *f)
		}
	}

	return table.Aggregate(tables...), failures, nil
}

func (p *TableProcessor) processImage(ctx context.Context, jobID string, src ImageSource) (table.Table, *errors.ProcessingError) {
	data, err := p.downloader.Fetch(ctx, src.URL)
	if err != nil {
		return nil, errors.NewFetchFailedError(jobID, src.URL, err)
	}

	ocr, err := p.recognizer.Recognize(ctx, data)
	if err != nil {
		return nil, errors.NewOCRFailedError(jobID, p.recognizer.Name(), src.URL, err)
	}

	t := table.Reconstruct(ocr.Annotation, p.options)
	p.logger.Debug("Image reconstructed",
		"job_id", jobID, "url", src.URL, "engine", ocr.Engine,
		"symbols", ocr.Symbols, "rows", len(t), "ocr_ms", ocr.Duration.Milliseconds())
	return t, nil
}

// metadata builds the ordered comment block written above the rows
func (p *TableProcessor) metadata(req *ExportRequest, win *window.Result, res *ExportResult) []export.Meta {
	var meta []export.Meta
	add := func(k, v string) { meta = append(meta, export.Meta{Key: k, Value: v}) }

	if req.Title != "" {
		add("title", req.Title)
	}
	if win != nil {
		add("channel", req.ChannelID)
		add("anchor", win.Anchor.ID)
		add("direction", string(req.direction()))
		add("count", strconv.Itoa(req.count()))
		if req.Minutes > 0 {
			add("minutes", strconv.Itoa(req.Minutes))
		}
		add("messages", strconv.Itoa(len(win.Messages)))
	}
	add("images", strconv.Itoa(res.Images))
	add("skipped_images", strconv.Itoa(len(res.Failures)))
	add("rows", strconv.Itoa(len(res.Rows)))
	add("generated_at", p.now().UTC().Format(time.RFC3339))
	return meta
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether an attachment looks like an image
func IsImage(a window.Attachment) bool {
	if strings.HasPrefix(strings.ToLower(a.ContentType), "image/") {
		return true
	}
	return imageExtensions[strings.ToLower(path.Ext(a.Filename))]
}

// ImageSources lists the image attachments of msgs in message order
func ImageSources(msgs []window.Message) []ImageSource {
	var out []ImageSource
	for _, m := range msgs {
		for _, a := range m.Attachments {
			if !IsImage(a) {
				continue
			}
			out = append(out, ImageSource{MessageID: m.ID, URL: a.URL, Filename: a.Filename})
		}
	}
	return out
}
