/**
 * Tesseract OCR backend
 *
 * Free, offline OCR using Tesseract through gosseract. The client is
 * created once and reused; gosseract clients are not safe for
 * concurrent use, so recognitions are serialised on a mutex.
 */

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/idextract-worker/internal/logging"
)

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	// Name identifies the backend in logs and explanations.
	Name string
	// Languages in Tesseract "+" form, e.g. "tam+eng".
	Languages string
	// TessdataPrefix overrides the traineddata directory when set.
	TessdataPrefix string
}

// Tesseract handles OCR using a long-lived gosseract client
type Tesseract struct {
	name   string
	mu     sync.Mutex
	client *gosseract.Client
	logger *logging.Logger
}

// NewTesseract creates a Tesseract backend. The caller owns it and
// must Close it at shutdown.
func NewTesseract(cfg *TesseractConfig) (*Tesseract, error) {
	langs := splitLanguages(cfg.Languages)
	if len(langs) == 0 {
		return nil, fmt.Errorf("at least one tesseract language is required")
	}

	name := cfg.Name
	if name == "" {
		name = "tesseract-" + strings.Join(langs, "+")
	}

	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set languages %v: %w", langs, err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &Tesseract{
		name:   name,
		client: client,
		logger: logging.NewLogger("Tesseract").With("backend", name),
	}, nil
}

// Name returns the backend name
func (t *Tesseract) Name() string { return t.name }

// Recognize returns one TextLine per Tesseract text line, positioned by
// the top edge of its bounding box.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]TextLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	lines := make([]TextLine, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		lines = append(lines, TextLine{
			Content:          text,
			VerticalPosition: float64(b.Box.Min.Y),
		})
	}

	// Some layouts yield no line boxes but still recognise text.
	if len(lines) == 0 {
		text, err := t.client.Text()
		if err != nil {
			return nil, fmt.Errorf("tesseract OCR failed: %w", err)
		}
		lines = linesFromText(text)
	}

	t.logger.Debug("Recognised text lines", "lines", len(lines))
	return lines, nil
}

// Close releases the underlying Tesseract handle
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}

func splitLanguages(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' || r == ' ' })
}
