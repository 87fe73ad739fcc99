// Package textclean is the single place where OCR text is normalised,
// stripped and case-folded for date and field extraction.
package textclean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	reNonLatin    = regexp.MustCompile(`[^A-Za-z ]+`)
	reNonLineChar = regexp.MustCompile(`[^A-Za-z .:\-]+`)
	reSpaces      = regexp.MustCompile(`\s+`)
	reMaskedRun   = regexp.MustCompile(`(?i)x{3,}`)
)

// sanitizePunct is the punctuation kept inside names ("A. K. D'Souza-Rao").
const sanitizePunct = ".'-"

// NormalizeLine composes the line to NFC and trims surrounding space so
// that label matching works on Indic scripts regardless of how the OCR
// backend encoded combining marks.
func NormalizeLine(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// SplitLines splits text into normalised, non-empty lines in order.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r", "")
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = NormalizeLine(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// CollapseSpaces replaces whitespace runs with one space and trims.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// LatinWords keeps only ASCII letters, turning everything else into
// word separators.
func LatinWords(s string) string {
	return CollapseSpaces(reNonLatin.ReplaceAllString(s, " "))
}

// AlphaWordCount counts the ASCII-letter words in s.
func AlphaWordCount(s string) int {
	return len(strings.Fields(LatinWords(s)))
}

// CleanLine drops every character outside letters, spaces and ".:-"
// without inserting separators. Used by the positional rules, whose
// length windows are measured on this form.
func CleanLine(s string) string {
	return strings.TrimSpace(reNonLineChar.ReplaceAllString(s, ""))
}

// HasMaskedRun reports document-number masking such as "XXXX XXXX 1234".
func HasMaskedRun(s string) bool {
	return reMaskedRun.MatchString(s)
}

// Sanitize strips everything except letters, combining marks, spaces
// and the name punctuation allow-list, collapses whitespace and title
// cases the result. It returns "" when no letter survives.
func Sanitize(s string) string {
	var b strings.Builder
	letters := 0
	for _, r := range norm.NFC.String(s) {
		switch {
		case unicode.IsLetter(r):
			letters++
			b.WriteRune(r)
		case unicode.IsMark(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case strings.ContainsRune(sanitizePunct, r):
			b.WriteRune(r)
		}
	}
	if letters == 0 {
		return ""
	}
	out := strings.Trim(CollapseSpaces(b.String()), sanitizePunct+" ")
	return TitleCase(out)
}

// TitleCase upper-cases the first letter of each word and lower-cases
// the rest. A new Caser is built per call because Casers carry state.
func TitleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
