/**
 * OCR Types - Shared data structures for OCR backends
 *
 * A backend maps an image to recognised text lines, each carrying its
 * vertical position so the caller can restore reading order.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sort"
	"strings"
)

// TextLine is one recognised line. Immutable once produced.
type TextLine struct {
	Content          string
	VerticalPosition float64
	SourceRegion     string
}

// Backend is an OCR capability. Implementations are constructed once by
// the caller and shared read-only across pipeline runs.
type Backend interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]TextLine, error)
}

// JoinLines sorts lines top-to-bottom (stable, so equal positions keep
// backend order) and joins their trimmed content with newlines.
func JoinLines(lines []TextLine) string {
	sorted := make([]TextLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VerticalPosition < sorted[j].VerticalPosition
	})

	parts := make([]string, 0, len(sorted))
	for _, l := range sorted {
		if c := strings.TrimSpace(l.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n")
}

// linesFromText assigns sequential positions to plain text output from
// engines that do not report geometry.
func linesFromText(text string) []TextLine {
	var lines []TextLine
	for i, l := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, TextLine{Content: l, VerticalPosition: float64(i)})
		}
	}
	return lines
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
