//go:build !ocr

package processor

import (
	"context"
	"errors"
)

// ErrTesseractNotEnabled is returned when the worker was built without the
// "ocr" build tag. Rebuild with -tags ocr to link libtesseract.
var ErrTesseractNotEnabled = errors.New("tesseract support not enabled; rebuild with -tags ocr")

// TesseractOCR is unavailable in this build
type TesseractOCR struct{}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Languages []string
}

// NewTesseractOCR always fails without the "ocr" build tag
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	return nil, ErrTesseractNotEnabled
}

// Name implements Recognizer
func (t *TesseractOCR) Name() string { return "tesseract" }

// Recognize implements Recognizer
func (t *TesseractOCR) Recognize(ctx context.Context, image []byte) (*OCRResult, error) {
	return nil, ErrTesseractNotEnabled
}
