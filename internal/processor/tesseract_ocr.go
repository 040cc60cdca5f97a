//go:build ocr

/**
 * Tesseract OCR - Offline symbol recognition
 *
 * Local OCR using Tesseract through gosseract. Symbol boxes are grouped back
 * into the block/paragraph/word hierarchy the table reconstruction expects.
 * Requires libtesseract and the "ocr" build tag.
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// TesseractOCR handles symbol-level OCR using Tesseract
type TesseractOCR struct {
	languages []string
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages []string // traineddata names, e.g. "jpn", "eng"
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &TesseractOCR{languages: langs}, nil
}

// Name implements Recognizer
func (t *TesseractOCR) Name() string { return "tesseract" }

// Recognize performs OCR using Tesseract. A gosseract client is not safe for
// concurrent use, so every call gets its own.
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (*OCRResult, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	symbols := make([]symbolBox, 0, len(boxes))
	for _, b := range boxes {
		symbols = append(symbols, symbolBox{
			Text:       b.Word,
			Confidence: b.Confidence / 100,
			Box: BoundingBox{
				X:      b.Box.Min.X,
				Y:      b.Box.Min.Y,
				Width:  b.Box.Dx(),
				Height: b.Box.Dy(),
			},
			Block:     b.BlockNum,
			Paragraph: b.ParNum,
			Word:      b.WordNum,
		})
	}

	annotation := annotationFromBoxes(symbols)
	return &OCRResult{
		Annotation: annotation,
		Engine:     t.Name(),
		Symbols:    annotation.SymbolCount(),
		Duration:   time.Since(startTime),
	}, nil
}
