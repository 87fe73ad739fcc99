// Package lexicon holds the label and boilerplate tokens the date
// extractor and field resolver match against. Defaults cover English
// plus Tamil and Hindi label variants; a YAML file can extend them.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon is read-only once built. All tokens are lowercase.
type Lexicon struct {
	// BirthLabels mark a line as carrying the date of birth.
	BirthLabels []string `yaml:"birth_labels"`
	// SuppressLabels mark non-birth dates (issue, enrolment, download).
	SuppressLabels []string `yaml:"suppress_labels"`
	// GuardianTokens introduce a father/guardian name ("S/O: ...").
	// Entries are matched as regular expression alternatives.
	GuardianTokens []string `yaml:"guardian_tokens"`
	// Boilerplate lines are never taken as a name.
	Boilerplate []string `yaml:"boilerplate"`
}

// Default returns the built-in lexicon.
func Default() *Lexicon {
	return &Lexicon{
		BirthLabels: []string{
			"dob", "d.o.b", "date of birth", "birth", "yob", "year of birth",
			"பிறந்த", "பிறந்த நாள்", "जन्म",
		},
		SuppressLabels: []string{
			"enrol", "enrollment", "enrolment", "issue date", "issued", "download date",
		},
		GuardianTokens: []string{
			`s/o`, `d/o`, `c/o`, `w/o`, `dio`, `father`, `guardian`,
		},
		Boilerplate: []string{
			"government", "india", "enrol", "address", "dob", "birth",
			"authority", "unique identification",
		},
	}
}

// NonLatinGuardianTokens are matched without ASCII word boundaries.
var NonLatinGuardianTokens = []string{"தந்தை", "பிதா", "पिता"}

// Load reads a YAML file and appends its entries to the defaults.
// An empty path returns the defaults.
func Load(path string) (*Lexicon, error) {
	lex := Default()
	if path == "" {
		return lex, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var extra Lexicon
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon file %s: %w", path, err)
	}

	lex.BirthLabels = merge(lex.BirthLabels, extra.BirthLabels)
	lex.SuppressLabels = merge(lex.SuppressLabels, extra.SuppressLabels)
	lex.GuardianTokens = merge(lex.GuardianTokens, extra.GuardianTokens)
	lex.Boilerplate = merge(lex.Boilerplate, extra.Boilerplate)
	return lex, nil
}

func merge(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, tok := range list {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// HasBirthLabel reports whether the lowercased line carries a birth label.
func (l *Lexicon) HasBirthLabel(lower string) bool {
	return containsAny(lower, l.BirthLabels)
}

// HasSuppressLabel reports whether the lowercased line names a
// non-birth date.
func (l *Lexicon) HasSuppressLabel(lower string) bool {
	return containsAny(lower, l.SuppressLabels)
}

// IsBoilerplate reports whether the lowercased line contains a
// boilerplate token.
func (l *Lexicon) IsBoilerplate(lower string) bool {
	return containsAny(lower, l.Boilerplate)
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}
