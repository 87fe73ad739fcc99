package ocr

import (
	"context"
	"fmt"
	"image"

	"github.com/adverant/nexus/idextract-worker/internal/clients"
)

// Vision adapts the remote vision OCR service to the Backend interface.
// The service returns plain text, so lines are positioned by their
// order in the response.
type Vision struct {
	client   *clients.VisionClient
	language string
}

// NewVision wraps a vision client. language is passed through to the
// service ("multi" when empty).
func NewVision(client *clients.VisionClient, language string) *Vision {
	if language == "" {
		language = "multi"
	}
	return &Vision{client: client, language: language}
}

func (v *Vision) Name() string { return "vision-" + v.language }

func (v *Vision) Recognize(ctx context.Context, img image.Image) ([]TextLine, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	resp, err := v.client.ExtractTextFromBytes(ctx, data, v.language)
	if err != nil {
		return nil, fmt.Errorf("vision OCR failed: %w", err)
	}
	return linesFromText(resp.Data.Text), nil
}

// HealthCheck reports whether the remote service is reachable.
func (v *Vision) HealthCheck(ctx context.Context) error {
	return v.client.HealthCheck(ctx)
}
