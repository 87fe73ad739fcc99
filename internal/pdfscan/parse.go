package pdfscan

import (
	"bytes"
	"regexp"
	"strconv"
)

var (
	reObjHeader = regexp.MustCompile(`(\d+)\s+\d+\s+obj\b`)
	reRef       = regexp.MustCompile(`(\d+)\s+\d+\s+R\b`)
	reRefOnly   = regexp.MustCompile(`^\s*(\d+)\s+\d+\s+R\s*$`)
)

// dict maps the top-level keys of a PDF dictionary to their raw values.
type dict map[string][]byte

// name returns a name value without its slash, or "".
func (d dict) name(key string) string {
	v := bytes.TrimSpace(d[key])
	if len(v) < 2 || v[0] != '/' {
		return ""
	}
	return string(v[1:])
}

func (d dict) ref(key string) (int, bool) {
	return refOf(d[key])
}

// int reads a direct integer value.
func (d dict) int(key string) (int, bool) {
	n, err := strconv.Atoi(string(bytes.TrimSpace(d[key])))
	return n, err == nil
}

type object struct {
	dict dict
	// raw is the body of objects that are not dictionaries.
	raw []byte
	// stream is the still-encoded stream data, nil for plain objects.
	stream []byte
}

type document struct {
	objects map[int]*object
}

// parse collects every indirect object in file order, later definitions
// replacing earlier ones, then unpacks compressed object streams.
func parse(data []byte) *document {
	doc := &document{objects: make(map[int]*object)}
	for pos := 0; pos < len(data); {
		loc := reObjHeader.FindSubmatchIndex(data[pos:])
		if loc == nil {
			break
		}
		num, err := strconv.Atoi(string(data[pos+loc[2] : pos+loc[3]]))
		obj, end := readObject(data, pos+loc[1])
		if err == nil {
			doc.objects[num] = obj
		}
		if end <= pos+loc[1] {
			end = pos + loc[1]
		}
		pos = end
	}

	for _, num := range doc.numbers() {
		if obj := doc.objects[num]; obj.dict != nil && obj.dict.name("Type") == "ObjStm" {
			doc.expandObjectStream(obj)
		}
	}
	return doc
}

func readObject(data []byte, start int) (*object, int) {
	i := skipSpace(data, start)
	obj := &object{}

	if d, end, ok := parseDict(data, i); ok {
		obj.dict = d
		j := skipSpace(data, end)
		if hasAt(data, j, "stream") {
			j += len("stream")
			switch {
			case hasAt(data, j, "\r\n"):
				j += 2
			case j < len(data) && (data[j] == '\n' || data[j] == '\r'):
				j++
			}
			obj.stream, end = streamBytes(data, j, d)
		}
		return obj, objectEnd(data, end)
	}

	end := bytes.Index(data[i:], []byte("endobj"))
	if end < 0 {
		obj.raw = bytes.TrimSpace(data[i:])
		return obj, len(data)
	}
	obj.raw = bytes.TrimSpace(data[i : i+end])
	return obj, i + end + len("endobj")
}

// streamBytes trusts a direct /Length when "endstream" follows it and
// otherwise scans for the keyword.
func streamBytes(data []byte, start int, d dict) ([]byte, int) {
	if n, ok := d.int("Length"); ok && n >= 0 && start+n <= len(data) {
		k := skipSpace(data, start+n)
		if hasAt(data, k, "endstream") {
			return data[start : start+n], k + len("endstream")
		}
	}

	k := bytes.Index(data[start:], []byte("endstream"))
	if k < 0 {
		return data[start:], len(data)
	}
	body := bytes.TrimSuffix(data[start:start+k], []byte("\n"))
	body = bytes.TrimSuffix(body, []byte("\r"))
	return body, start + k + len("endstream")
}

func objectEnd(data []byte, from int) int {
	if k := bytes.Index(data[from:], []byte("endobj")); k >= 0 {
		return from + k + len("endobj")
	}
	return from
}

// expandObjectStream adds the objects packed in a /Type /ObjStm stream.
// Objects already defined directly in the file keep their definition.
func (doc *document) expandObjectStream(obj *object) {
	data, err := decodeStream(obj.stream, doc.filters(obj.dict), maxDecodedBytes)
	if err != nil {
		return
	}
	n, _ := obj.dict.int("N")
	first, ok := obj.dict.int("First")
	if !ok || first < 0 || first > len(data) {
		return
	}

	header := bytes.Fields(data[:first])
	offsets := make([]int, 0, n)
	nums := make([]int, 0, n)
	for i := 0; i < n && 2*i+1 < len(header); i++ {
		num, err1 := strconv.Atoi(string(header[2*i]))
		off, err2 := strconv.Atoi(string(header[2*i+1]))
		if err1 != nil || err2 != nil || first+off > len(data) {
			return
		}
		nums = append(nums, num)
		offsets = append(offsets, first+off)
	}

	for i, num := range nums {
		if _, exists := doc.objects[num]; exists {
			continue
		}
		end := len(data)
		if i+1 < len(offsets) && offsets[i+1] >= offsets[i] {
			end = offsets[i+1]
		}
		body := data[offsets[i]:end]
		packed := &object{}
		if d, _, ok := parseDict(body, 0); ok {
			packed.dict = d
		} else {
			packed.raw = bytes.TrimSpace(body)
		}
		doc.objects[num] = packed
	}
}

// parseDict parses the dictionary starting at or after b[i] and returns
// it with the offset just past its closing ">>".
func parseDict(b []byte, i int) (dict, int, bool) {
	i = skipSpace(b, i)
	if !hasAt(b, i, "<<") {
		return nil, i, false
	}
	i += 2

	d := dict{}
	for {
		i = skipSpace(b, i)
		if i >= len(b) {
			return nil, i, false
		}
		if hasAt(b, i, ">>") {
			return d, i + 2, true
		}
		if b[i] != '/' {
			return nil, i, false
		}
		key, j := readName(b, i)
		j = skipSpace(b, j)
		end, ok := skipValue(b, j)
		if !ok {
			return nil, j, false
		}
		d[key] = b[j:end]
		i = end
	}
}

func skipValue(b []byte, i int) (int, bool) {
	if i >= len(b) {
		return i, false
	}
	switch {
	case hasAt(b, i, "<<"):
		_, end, ok := parseDict(b, i)
		return end, ok
	case b[i] == '<':
		k := bytes.IndexByte(b[i:], '>')
		if k < 0 {
			return i, false
		}
		return i + k + 1, true
	case b[i] == '[':
		return skipArray(b, i)
	case b[i] == '(':
		return skipString(b, i)
	case b[i] == '/':
		_, j := readName(b, i)
		return j, true
	}

	j := readToken(b, i)
	if j == i {
		return i, false
	}
	if isInt(b[i:j]) {
		k := skipSpace(b, j)
		k2 := readToken(b, k)
		if k2 > k && isInt(b[k:k2]) {
			k3 := skipSpace(b, k2)
			if k3 < len(b) && b[k3] == 'R' && (k3+1 == len(b) || isDelim(b[k3+1]) || isSpace(b[k3+1])) {
				return k3 + 1, true
			}
		}
	}
	return j, true
}

func skipArray(b []byte, i int) (int, bool) {
	i++
	for {
		i = skipSpace(b, i)
		if i >= len(b) {
			return i, false
		}
		if b[i] == ']' {
			return i + 1, true
		}
		end, ok := skipValue(b, i)
		if !ok {
			return end, false
		}
		i = end
	}
}

func skipString(b []byte, i int) (int, bool) {
	depth := 0
	for ; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return i, false
}

func readName(b []byte, i int) (string, int) {
	j := i + 1
	for j < len(b) && !isSpace(b[j]) && !isDelim(b[j]) {
		j++
	}
	return string(b[i+1 : j]), j
}

func readToken(b []byte, i int) int {
	for i < len(b) && !isSpace(b[i]) && !isDelim(b[i]) {
		i++
	}
	return i
}

func skipSpace(b []byte, i int) int {
	for i < len(b) {
		switch {
		case isSpace(b[i]):
			i++
		case b[i] == '%':
			for i < len(b) && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		default:
			return i
		}
	}
	return i
}

func hasAt(b []byte, i int, s string) bool {
	return i >= 0 && i+len(s) <= len(b) && string(b[i:i+len(s)]) == s
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isInt(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// refOf reads a value that is exactly an indirect reference.
func refOf(v []byte) (int, bool) {
	m := reRefOnly.FindSubmatch(v)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(string(m[1]))
	return n, err == nil
}

// refsIn returns every object reference in an array or dictionary value.
func refsIn(v []byte) []int {
	var out []int
	for _, m := range reRef.FindAllSubmatch(v, -1) {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			out = append(out, n)
		}
	}
	return out
}
