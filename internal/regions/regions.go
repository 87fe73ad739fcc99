// Package regions cuts a document image into the fixed set of named
// candidate sub-images that the fusion engine OCRs independently.
package regions

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Region labels. LabelFull is always generated.
const (
	LabelPhotoRight   = "photo_right"
	LabelTopLeft      = "top_left"
	LabelBottomCenter = "bottom_center"
	LabelFull         = "full"
)

// Labels lists every region in generation order. The order doubles as
// the fusion tie-break priority.
var Labels = []string{LabelPhotoRight, LabelTopLeft, LabelBottomCenter, LabelFull}

// Region is a named sub-image.
type Region struct {
	Label string
	Image image.Image
}

// frame is a crop rectangle as fractions of the page size.
type frame struct {
	x0, y0, x1, y1 float64
}

// Fractions tuned for ID cards: the text block to the right of the
// photo, the header block and the lower band with DOB/gender.
var frames = map[string]frame{
	LabelPhotoRight:   {0.18, 0.28, 0.98, 0.75},
	LabelTopLeft:      {0, 0, 0.65, 0.40},
	LabelBottomCenter: {0.02, 0.45, 0.98, 0.90},
	LabelFull:         {0, 0, 1, 1},
}

// Generator produces candidate regions.
type Generator struct {
	// TargetWidth upscales narrower regions before OCR. Zero disables it.
	TargetWidth int
}

// NewGenerator returns a generator that upscales regions to targetWidth.
func NewGenerator(targetWidth int) *Generator {
	return &Generator{TargetWidth: targetWidth}
}

// Generate returns the regions in Labels order. Degenerate crops on
// tiny images are skipped, but the full page is always present.
func (g *Generator) Generate(img image.Image) []Region {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	out := make([]Region, 0, len(Labels))
	for _, label := range Labels {
		f := frames[label]
		rect := image.Rect(
			b.Min.X+int(float64(w)*f.x0),
			b.Min.Y+int(float64(h)*f.y0),
			b.Min.X+int(float64(w)*f.x1),
			b.Min.Y+int(float64(h)*f.y1),
		).Intersect(b)
		if rect.Empty() && label != LabelFull {
			continue
		}
		out = append(out, Region{Label: label, Image: g.resize(crop(img, rect))})
	}
	return out
}

func crop(img image.Image, rect image.Rectangle) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

func (g *Generator) resize(img image.Image) image.Image {
	b := img.Bounds()
	if g.TargetWidth <= 0 || b.Dx() == 0 || b.Dx() >= g.TargetWidth {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, g.TargetWidth, b.Dy()*g.TargetWidth/b.Dx()))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Decode reads a PNG, JPEG, GIF, BMP, TIFF or WebP image.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}
