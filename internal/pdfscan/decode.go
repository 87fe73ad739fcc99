package pdfscan

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

const maxDecodedBytes = 256 << 20

// filters lists the stream's filter names in application order.
func (doc *document) filters(d dict) []string {
	v := bytes.TrimSpace(d["Filter"])
	if len(v) == 0 {
		return nil
	}
	if v[0] != '[' {
		if arr := doc.arrayOf(v); arr != nil {
			v = arr
		} else if name := d.name("Filter"); name != "" {
			return []string{name}
		}
	}

	var names []string
	for i := 0; i < len(v); {
		k := bytes.IndexByte(v[i:], '/')
		if k < 0 {
			break
		}
		name, end := readName(v, i+k)
		names = append(names, name)
		i = end
	}
	return names
}

// decodeStream applies every filter except a trailing DCTDecode, which
// the caller hands to the JPEG decoder.
func decodeStream(data []byte, filters []string, limit int) ([]byte, error) {
	for i, f := range filters {
		switch f {
		case "FlateDecode", "Fl":
			out, err := inflate(data, limit)
			if err != nil {
				return nil, err
			}
			data = out
		case "DCTDecode", "DCT":
			if i != len(filters)-1 {
				return nil, errors.New("DCTDecode must be the last filter")
			}
		default:
			return nil, fmt.Errorf("unsupported filter %s", f)
		}
	}
	return data, nil
}

func inflate(data []byte, limit int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("flate: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if len(out) > limit {
		return nil, fmt.Errorf("flate: stream exceeds %d bytes", limit)
	}
	// Truncated streams without a checksum are common; keep what decoded.
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		return nil, fmt.Errorf("flate: %w", err)
	}
	return out, nil
}

func (doc *document) decodeImage(obj *object) (image.Image, error) {
	d := obj.dict
	w, _ := doc.intOf(d["Width"])
	h, _ := doc.intOf(d["Height"])
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", w, h)
	}
	bpc, ok := doc.intOf(d["BitsPerComponent"])
	if !ok {
		bpc = 8
	}

	filters := doc.filters(d)
	data, err := decodeStream(obj.stream, filters, min(maxDecodedBytes, w*h*4+h+1024))
	if err != nil {
		return nil, err
	}
	if n := len(filters); n > 0 && (filters[n-1] == "DCTDecode" || filters[n-1] == "DCT") {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("jpeg: %w", err)
		}
		return img, nil
	}

	parms := doc.decodeParms(d)
	if pred, _ := parms.int("Predictor"); pred >= 10 {
		colors, ok := parms.int("Colors")
		if !ok || colors < 1 {
			colors = components(len(data), w, h)
		}
		columns, ok := parms.int("Columns")
		if !ok || columns < 1 {
			columns = w
		}
		rowLen := (columns*colors*bpc + 7) / 8
		bpp := max(1, colors*bpc/8)
		if data, err = unpredict(data, rowLen, bpp); err != nil {
			return nil, err
		}
	}

	return raster(data, w, h, bpc)
}

// decodeParms returns the parameters of the first filter that has any.
func (doc *document) decodeParms(d dict) dict {
	v := bytes.TrimSpace(d["DecodeParms"])
	if len(v) > 0 && v[0] == '[' {
		if k := bytes.Index(v, []byte("<<")); k >= 0 {
			if p, _, ok := parseDict(v, k); ok {
				return p
			}
		}
		for _, num := range refsIn(v) {
			if obj := doc.objects[num]; obj != nil && obj.dict != nil {
				return obj.dict
			}
		}
		return dict{}
	}
	if p := doc.dictOf(v); p != nil {
		return p
	}
	return dict{}
}

// components infers samples per pixel from a predictor-encoded length.
func components(n, w, h int) int {
	if w <= 0 || h <= 0 {
		return 1
	}
	if c := (n/h - 1) / w; c > 0 {
		return c
	}
	return 1
}

// unpredict reverses PNG row filters (predictors 10 to 15).
func unpredict(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := len(data) / stride
	if rows == 0 {
		return nil, errors.New("predictor: stream shorter than one row")
	}

	out := make([]byte, rows*rowLen)
	prev := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		in := data[r*stride+1 : (r+1)*stride]
		cur := out[r*rowLen : (r+1)*rowLen]
		filter := data[r*stride]
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left, upLeft = cur[i-bpp], prev[i-bpp]
			}
			up := prev[i]
			switch filter {
			case 0:
				cur[i] = in[i]
			case 1:
				cur[i] = in[i] + left
			case 2:
				cur[i] = in[i] + up
			case 3:
				cur[i] = in[i] + byte((int(left)+int(up))/2)
			case 4:
				cur[i] = in[i] + paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("predictor: unknown row filter %d", filter)
			}
		}
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// raster builds an image from unfiltered samples. 8-bit samples are
// read as gray, RGB or CMYK by how many bytes each pixel has; 1-bit
// samples are bilevel scans with 1 as white.
func raster(data []byte, w, h, bpc int) (image.Image, error) {
	rect := image.Rect(0, 0, w, h)
	switch bpc {
	case 1:
		rowLen := (w + 7) / 8
		if len(data) < rowLen*h {
			return nil, fmt.Errorf("bilevel image: got %d bytes, want %d", len(data), rowLen*h)
		}
		g := image.NewGray(rect)
		for y := 0; y < h; y++ {
			row := data[y*rowLen:]
			for x := 0; x < w; x++ {
				if row[x/8]>>(7-uint(x%8))&1 == 1 {
					g.Pix[y*g.Stride+x] = 0xff
				}
			}
		}
		return g, nil

	case 8:
		px := w * h
		switch comps := len(data) / px; {
		case comps >= 4:
			img := image.NewCMYK(rect)
			copy(img.Pix, data[:px*4])
			return img, nil
		case comps == 3:
			img := image.NewNRGBA(rect)
			for i := 0; i < px; i++ {
				img.Pix[i*4] = data[i*3]
				img.Pix[i*4+1] = data[i*3+1]
				img.Pix[i*4+2] = data[i*3+2]
				img.Pix[i*4+3] = 0xff
			}
			return img, nil
		case comps >= 1:
			img := image.NewGray(rect)
			copy(img.Pix, data[:px])
			return img, nil
		}
		return nil, fmt.Errorf("image data too short: %d bytes for %dx%d", len(data), w, h)
	}
	return nil, fmt.Errorf("unsupported bits per component %d", bpc)
}
