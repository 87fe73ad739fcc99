package regions

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestGenerateLabelsAndSizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1000, 600))
	g := NewGenerator(1400)

	regs := g.Generate(img)
	if len(regs) != len(Labels) {
		t.Fatalf("got %d regions, want %d", len(regs), len(Labels))
	}
	for i, r := range regs {
		if r.Label != Labels[i] {
			t.Errorf("region %d label = %q, want %q", i, r.Label, Labels[i])
		}
		if r.Image.Bounds().Dx() != 1400 {
			t.Errorf("region %s width = %d, want 1400", r.Label, r.Image.Bounds().Dx())
		}
	}

	full := regs[len(regs)-1]
	if full.Label != LabelFull {
		t.Fatalf("last region = %q, want full", full.Label)
	}
	if got := full.Image.Bounds().Dy(); got != 840 {
		t.Errorf("full height after upscale = %d, want 840", got)
	}
}

func TestGenerateKeepsWideImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2000, 1000))
	regs := NewGenerator(1400).Generate(img)

	for _, r := range regs {
		if r.Label == LabelTopLeft && r.Image.Bounds().Dx() != 1400 {
			// 0.65 * 2000 = 1300 < 1400, upscaled
			t.Errorf("top_left width = %d, want 1400", r.Image.Bounds().Dx())
		}
		if r.Label == LabelFull && r.Image.Bounds().Dx() != 2000 {
			t.Errorf("full width = %d, want 2000", r.Image.Bounds().Dx())
		}
	}
}

func TestGenerateTinyImageAlwaysHasFull(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	regs := NewGenerator(0).Generate(img)

	found := false
	for _, r := range regs {
		if r.Label == LabelFull {
			found = true
		}
	}
	if !found {
		t.Error("full region missing")
	}
}

func TestCropCopiesPixels(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	img.Set(10, 0, color.RGBA{R: 255, A: 255})

	regs := NewGenerator(0).Generate(img)
	for _, r := range regs {
		if r.Label != LabelTopLeft {
			continue
		}
		got := color.RGBAModel.Convert(r.Image.At(10, 0)).(color.RGBA)
		if got.R != 255 {
			t.Errorf("pixel = %v, want red", got)
		}
	}
}

func TestDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}

	img, format, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 4 {
		t.Errorf("Decode() = %s %v", format, img.Bounds())
	}

	if _, _, err := Decode([]byte("not an image")); err == nil {
		t.Error("expected error for garbage input")
	}
}
