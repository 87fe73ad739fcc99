/**
 * PDF page scans
 *
 * Identity documents often arrive as a PDF wrapping one scanned raster
 * per page. This package walks the page tree, picks the largest image
 * XObject on each page (following Form XObjects a few levels down) and
 * decodes it. Pages without an embedded image are skipped; vector text
 * pages are not rendered.
 */

package pdfscan

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sort"
	"strconv"
)

const (
	maxPages     = 50
	maxFormDepth = 3
)

var (
	// ErrNotPDF is returned for data without a PDF header.
	ErrNotPDF = errors.New("not a PDF document")
	// ErrNoImages is returned when no page carries an embedded image.
	ErrNoImages = errors.New("no page carries an embedded image")
)

// Page is the scan embedded in one PDF page. Number is 1-based in page
// tree order.
type Page struct {
	Number int
	Image  image.Image
}

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// Pages returns the scan of every page that has one, in page order.
func Pages(data []byte) ([]Page, error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}

	doc := parse(data)
	nodes := doc.pageTree()
	if len(nodes) > maxPages {
		nodes = nodes[:maxPages]
	}

	var (
		pages    []Page
		firstErr error
	)
	for i, node := range nodes {
		obj := doc.pageImage(node.resources, 0)
		if obj == nil {
			continue
		}
		img, err := doc.decodeImage(obj)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", i+1, err)
			}
			continue
		}
		pages = append(pages, Page{Number: i + 1, Image: img})
	}

	if len(pages) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, ErrNoImages
	}
	return pages, nil
}

type pageNode struct {
	dict      dict
	resources dict
}

// pageTree lists the leaf pages starting from the catalog. Files whose
// catalog cannot be found fall back to every /Type /Page object in
// object number order.
func (doc *document) pageTree() []pageNode {
	var out []pageNode
	if root := doc.catalog(); root != nil {
		if num, ok := root.ref("Pages"); ok {
			seen := map[int]bool{num: true}
			if obj := doc.objects[num]; obj != nil && obj.dict != nil {
				doc.walk(obj.dict, nil, seen, &out)
			}
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, num := range doc.numbers() {
		d := doc.objects[num].dict
		if d != nil && d.name("Type") == "Page" {
			out = append(out, pageNode{dict: d, resources: doc.dictOf(d["Resources"])})
		}
	}
	return out
}

func (doc *document) catalog() dict {
	for _, num := range doc.numbers() {
		if d := doc.objects[num].dict; d != nil && d.name("Type") == "Catalog" {
			return d
		}
	}
	return nil
}

// walk descends a page tree node. Resources are inherited from the
// nearest ancestor that declares them.
func (doc *document) walk(node dict, inherited dict, seen map[int]bool, out *[]pageNode) {
	res := doc.dictOf(node["Resources"])
	if res == nil {
		res = inherited
	}

	kids, isTree := node["Kids"]
	if !isTree && node.name("Type") != "Pages" {
		*out = append(*out, pageNode{dict: node, resources: res})
		return
	}
	for _, num := range refsIn(doc.arrayOf(kids)) {
		if seen[num] || len(*out) >= maxPages {
			continue
		}
		seen[num] = true
		if obj := doc.objects[num]; obj != nil && obj.dict != nil {
			doc.walk(obj.dict, res, seen, out)
		}
	}
}

// pageImage returns the largest image XObject reachable from res.
func (doc *document) pageImage(res dict, depth int) *object {
	xobjects := doc.dictOf(res["XObject"])
	if xobjects == nil {
		return nil
	}

	keys := make([]string, 0, len(xobjects))
	for k := range xobjects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		best     *object
		bestArea int
	)
	consider := func(obj *object) {
		w, _ := doc.intOf(obj.dict["Width"])
		h, _ := doc.intOf(obj.dict["Height"])
		if area := w * h; area > bestArea {
			best, bestArea = obj, area
		}
	}

	for _, k := range keys {
		num, ok := refOf(xobjects[k])
		if !ok {
			continue
		}
		obj := doc.objects[num]
		if obj == nil || obj.dict == nil || obj.stream == nil {
			continue
		}
		switch obj.dict.name("Subtype") {
		case "Image":
			if string(bytes.TrimSpace(obj.dict["ImageMask"])) == "true" {
				continue
			}
			consider(obj)
		case "Form":
			if depth+1 >= maxFormDepth {
				continue
			}
			if inner := doc.pageImage(doc.dictOf(obj.dict["Resources"]), depth+1); inner != nil {
				consider(inner)
			}
		}
	}
	return best
}

func (doc *document) numbers() []int {
	nums := make([]int, 0, len(doc.objects))
	for n := range doc.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// dictOf returns the dictionary v holds directly or by reference.
func (doc *document) dictOf(v []byte) dict {
	if len(v) == 0 {
		return nil
	}
	if d, _, ok := parseDict(v, 0); ok {
		return d
	}
	if num, ok := refOf(v); ok {
		if obj := doc.objects[num]; obj != nil {
			return obj.dict
		}
	}
	return nil
}

// arrayOf returns the array v holds directly or by reference.
func (doc *document) arrayOf(v []byte) []byte {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '[' {
		return v
	}
	if num, ok := refOf(v); ok {
		if obj := doc.objects[num]; obj != nil {
			return obj.raw
		}
	}
	return nil
}

// intOf reads a direct or referenced integer.
func (doc *document) intOf(v []byte) (int, bool) {
	if num, ok := refOf(v); ok {
		obj := doc.objects[num]
		if obj == nil {
			return 0, false
		}
		v = obj.raw
	}
	n, err := strconv.Atoi(string(bytes.TrimSpace(v)))
	return n, err == nil
}
