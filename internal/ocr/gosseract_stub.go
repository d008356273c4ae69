//go:build !gosseract

package ocr

import "errors"

// ErrGosseractNotEnabled is returned when OCR_ENGINE=gosseract but the binary was
// built without libtesseract. Rebuild with -tags gosseract to enable it.
var ErrGosseractNotEnabled = errors.New("gosseract engine not enabled; rebuild with -tags gosseract")

func newGosseractEngine(Config) (ImageEngine, error) {
	return nil, ErrGosseractNotEnabled
}
