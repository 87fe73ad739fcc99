// Package pdfscantest builds small scanned PDFs for tests.
package pdfscantest

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
)

// Image is an image XObject: its dictionary entries (without /Length)
// and encoded stream bytes.
type Image struct {
	Dict string
	Data []byte
}

// JPEG wraps img as a DCTDecode image.
func JPEG(img image.Image) (*Image, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Image{
		Dict: fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode", b.Dx(), b.Dy()),
		Data: buf.Bytes(),
	}, nil
}

// FlateGray wraps an 8-bit gray image as a FlateDecode image.
func FlateGray(img *image.Gray) *Image {
	b := img.Bounds()
	raw := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		raw = append(raw, img.Pix[off:off+b.Dx()]...)
	}
	return &Image{
		Dict: fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode", b.Dx(), b.Dy()),
		Data: Deflate(raw),
	}
}

// Deflate zlib-compresses data.
func Deflate(data []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(data)
	zw.Close()
	return buf.Bytes()
}

// Document builds a PDF with one page per image. A nil entry produces a
// page with no images.
func Document(pages ...*Image) []byte {
	var objs [][]byte
	add := func(body []byte) int {
		objs = append(objs, body)
		return len(objs)
	}

	add(nil) // catalog, filled below
	add(nil) // page tree, filled below

	var kids []string
	for _, img := range pages {
		if img == nil {
			content := add(Stream("", []byte("BT ET")))
			page := add([]byte(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R >>", content)))
			kids = append(kids, fmt.Sprintf("%d 0 R", page))
			continue
		}
		im := add(Stream(img.Dict, img.Data))
		content := add(Stream("", []byte("q 612 0 0 792 0 0 cm /Im0 Do Q")))
		page := add([]byte(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /XObject << /Im0 %d 0 R >> >> /Contents %d 0 R >>", im, content)))
		kids = append(kids, fmt.Sprintf("%d 0 R", page))
	}

	objs[0] = []byte("<< /Type /Catalog /Pages 2 0 R >>")
	objs[1] = []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids)))
	return Objects(objs...)
}

// Objects lays out numbered objects (1, 2, ...) into a PDF file.
func Objects(objs ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n%\xe2\xe3\xcf\xd3\n")
	for i, body := range objs {
		fmt.Fprintf(&buf, "%d 0 obj\n", i+1)
		buf.Write(body)
		buf.WriteString("\nendobj\n")
	}
	buf.WriteString("trailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return buf.Bytes()
}

// Stream renders a stream object body with the given dictionary entries.
func Stream(dict string, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<< %s /Length %d >>\nstream\n", dict, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream")
	return buf.Bytes()
}
