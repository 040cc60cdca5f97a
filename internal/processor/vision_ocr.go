/**
 * Vision OCR - Cloud document text detection
 *
 * Sends images to the Cloud Vision DOCUMENT_TEXT_DETECTION feature and maps
 * the returned page/block/paragraph/word/symbol tree onto table.Annotation.
 */

package processor

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/adverant/nexus/tablescan-worker/internal/table"
)

const documentTextDetection = "DOCUMENT_TEXT_DETECTION"

// VisionOCR handles symbol-level OCR using Cloud Vision
type VisionOCR struct {
	service   *vision.Service
	languages []string
}

// VisionConfig holds Cloud Vision configuration
type VisionConfig struct {
	CredentialsFile string
	APIKey          string
	Languages       []string // language hints, e.g. "ja", "en"
	Endpoint        string   // overrides the API endpoint; used by tests
}

// NewVisionOCR creates a new Cloud Vision client. Without credentials or an
// API key, application default credentials are used.
func NewVisionOCR(ctx context.Context, cfg *VisionConfig) (*VisionOCR, error) {
	var opts []option.ClientOption
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	service, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision service: %w", err)
	}

	return &VisionOCR{
		service:   service,
		languages: cfg.Languages,
	}, nil
}

// Name implements Recognizer
func (v *VisionOCR) Name() string { return "vision" }

// Recognize performs document text detection on one image
func (v *VisionOCR) Recognize(ctx context.Context, image []byte) (*OCRResult, error) {
	startTime := time.Now()

	request := &vision.AnnotateImageRequest{
		Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []*vision.Feature{{Type: documentTextDetection}},
	}
	if len(v.languages) > 0 {
		request.ImageContext = &vision.ImageContext{LanguageHints: v.languages}
	}

	resp, err := v.service.Images.Annotate(&vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{request},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("vision annotate request failed: %w", err)
	}

	annotation := &table.Annotation{}
	if len(resp.Responses) > 0 {
		r := resp.Responses[0]
		if r.Error != nil && r.Error.Code != 0 {
			return nil, fmt.Errorf("vision annotate failed: code %d: %s", r.Error.Code, r.Error.Message)
		}
		annotation = annotationFromVision(r.FullTextAnnotation)
	}

	return &OCRResult{
		Annotation: annotation,
		Engine:     v.Name(),
		Symbols:    annotation.SymbolCount(),
		Duration:   time.Since(startTime),
	}, nil
}

// annotationFromVision copies the Vision text tree. Vertex coordinates the
// API omits are zero.
func annotationFromVision(full *vision.TextAnnotation) *table.Annotation {
	out := &table.Annotation{}
	if full == nil {
		return out
	}

	for _, p := range full.Pages {
		if p == nil {
			continue
		}
		page := table.Page{}
		for _, b := range p.Blocks {
			if b == nil {
				continue
			}
			block := table.Block{}
			for _, para := range b.Paragraphs {
				if para == nil {
					continue
				}
				paragraph := table.Paragraph{}
				for _, w := range para.Words {
					if w == nil {
						continue
					}
					word := table.Word{}
					for _, s := range w.Symbols {
						if s == nil {
							continue
						}
						word.Symbols = append(word.Symbols, table.Symbol{
							Text:       s.Text,
							Confidence: s.Confidence,
							Bounds:     polygonFromVision(s.BoundingBox),
						})
					}
					paragraph.Words = append(paragraph.Words, word)
				}
				block.Paragraphs = append(block.Paragraphs, paragraph)
			}
			page.Blocks = append(page.Blocks, block)
		}
		out.Pages = append(out.Pages, page)
	}

	return out
}

func polygonFromVision(poly *vision.BoundingPoly) table.Polygon {
	if poly == nil {
		return nil
	}
	out := make(table.Polygon, 0, len(poly.Vertices))
	for _, v := range poly.Vertices {
		if v == nil {
			out = append(out, table.Vertex{})
			continue
		}
		out = append(out, table.Vertex{X: float64(v.X), Y: float64(v.Y)})
	}
	return out
}
