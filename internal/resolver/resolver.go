/**
 * Field Resolver
 *
 * Resolves the holder name and father/guardian name from a transcript
 * with an ordered chain of candidate rules. Each rule is a pure function
 * of the transcript and the fields resolved so far; the first rule that
 * produces a value for a field wins.
 */

package resolver

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/adverant/nexus/idextract-worker/internal/lexicon"
	"github.com/adverant/nexus/idextract-worker/internal/textclean"
)

// Field identifies a resolved output field.
type Field string

const (
	FieldName   Field = "name"
	FieldFather Field = "father_name"
)

// Rule names, reported back to callers for explanation.
const (
	RuleFatherLabel   = "father_label"
	RuleFatherNearDOB = "father_near_dob"
	RuleNameLabel     = "name_label"
	RuleNameAfterTo   = "name_after_to"
	RuleNameNearDOB   = "name_near_dob"
	RuleNameScan      = "name_scan"
)

const (
	minFatherLen     = 3
	fatherWindow     = 3
	maxFatherLineLen = 25
	nameWindow       = 4
	minNameLineLen   = 3
	maxNameLineLen   = 30
	toLookahead      = 3
	minNameWords     = 2
)

var reNameLabel = regexp.MustCompile(`(?i)^name[:\-\s]*([A-Za-z ]{2,})$`)

// State is the input every rule sees: the transcript lines, the DOB line
// index (-1 when unknown) and the fields resolved so far.
type State struct {
	Lines    []string
	DOBIndex int
	Name     string
	Father   string
}

func (s *State) get(f Field) string {
	if f == FieldFather {
		return s.Father
	}
	return s.Name
}

func (s *State) set(f Field, v string) {
	if f == FieldFather {
		s.Father = v
		return
	}
	s.Name = v
}

// Rule is one candidate heuristic. Apply returns an already sanitized
// value, or false when the rule does not apply.
type Rule struct {
	Name  string
	Field Field
	// Refine lets the rule run even after the field was resolved; it
	// replaces the earlier value only when it succeeds.
	Refine bool
	Apply  func(s State) (string, bool)
}

// Fields is the resolver output.
type Fields struct {
	Name       string
	Father     string
	NameRule   string
	FatherRule string
}

// Resolver applies the rule chain. It holds no per-run state and is safe
// for concurrent use.
type Resolver struct {
	lex      *lexicon.Lexicon
	reFather *regexp.Regexp
	rules    []Rule
}

// New builds a resolver over the given lexicon (nil uses the defaults).
func New(lex *lexicon.Lexicon) *Resolver {
	if lex == nil {
		lex = lexicon.Default()
	}
	r := &Resolver{lex: lex, reFather: guardianPattern(lex)}
	r.rules = []Rule{
		{Name: RuleFatherLabel, Field: FieldFather, Apply: r.fatherLabel},
		{Name: RuleFatherNearDOB, Field: FieldFather, Refine: true, Apply: r.fatherNearDOB},
		{Name: RuleNameLabel, Field: FieldName, Apply: r.nameLabel},
		{Name: RuleNameAfterTo, Field: FieldName, Apply: r.nameAfterTo},
		{Name: RuleNameNearDOB, Field: FieldName, Apply: r.nameNearDOB},
		{Name: RuleNameScan, Field: FieldName, Apply: r.nameScan},
	}
	return r
}

// guardianPattern matches a relation token followed by a Latin name
// fragment. Latin tokens must be whole words, so "dio" never matches
// inside "Dionne"; script tokens have no ASCII boundary to anchor on.
func guardianPattern(lex *lexicon.Lexicon) *regexp.Regexp {
	latin := make([]string, 0, len(lex.GuardianTokens))
	for _, tok := range lex.GuardianTokens {
		if _, err := regexp.Compile(tok); err != nil {
			tok = regexp.QuoteMeta(tok)
		}
		latin = append(latin, tok)
	}
	script := make([]string, 0, len(lexicon.NonLatinGuardianTokens))
	for _, tok := range lexicon.NonLatinGuardianTokens {
		script = append(script, regexp.QuoteMeta(tok))
	}

	alts := `\b(?:` + strings.Join(latin, "|") + `)(?:\b|[:/.\s])`
	if len(script) > 0 {
		alts += "|" + strings.Join(script, "|")
	}
	return regexp.MustCompile(`(?i)(?:` + alts + `)(?:'s)?(?:\s*name\b)?[:\-\s]*([A-Za-z ]+)`)
}

// Rules returns the chain in application order.
func (r *Resolver) Rules() []Rule {
	return r.rules
}

// Resolve runs the rule chain over the transcript lines. dobIndex is the
// line carrying the chosen date of birth, or -1.
func (r *Resolver) Resolve(lines []string, dobIndex int) Fields {
	s := State{Lines: lines, DOBIndex: dobIndex}
	if dobIndex >= len(lines) {
		s.DOBIndex = -1
	}

	var out Fields
	for _, rule := range r.rules {
		if s.get(rule.Field) != "" && !rule.Refine {
			continue
		}
		v, ok := rule.Apply(s)
		if !ok || v == "" {
			continue
		}
		s.set(rule.Field, v)
		if rule.Field == FieldFather {
			out.FatherRule = rule.Name
		} else {
			out.NameRule = rule.Name
		}
	}
	out.Name, out.Father = s.Name, s.Father
	return out
}

// fatherLabel: first line with a guardian token and a name fragment.
func (r *Resolver) fatherLabel(s State) (string, bool) {
	for _, line := range s.Lines {
		m := r.reFather.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if v := textclean.Sanitize(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

// fatherNearDOB: only when the label rule found nothing usable. Takes
// the nearest of the three lines above the DOB line whose cleaned form
// has 3 to 25 characters.
func (r *Resolver) fatherNearDOB(s State) (string, bool) {
	if s.DOBIndex < 0 || utf8.RuneCountInString(s.Father) >= minFatherLen {
		return "", false
	}
	for i := s.DOBIndex - 1; i >= 0 && i >= s.DOBIndex-fatherWindow; i-- {
		cl := textclean.CleanLine(s.Lines[i])
		if len(cl) < minFatherLen || len(cl) > maxFatherLineLen {
			continue
		}
		if v := textclean.Sanitize(cl); v != "" {
			return v, true
		}
	}
	return "", false
}

// nameLabel: "Name: <two or more words>".
func (r *Resolver) nameLabel(s State) (string, bool) {
	for _, line := range s.Lines {
		m := reNameLabel.FindStringSubmatch(line)
		if m == nil || textclean.AlphaWordCount(m[1]) < minNameWords {
			continue
		}
		if v := textclean.Sanitize(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

// nameAfterTo: the holder name follows a "To" salutation.
func (r *Resolver) nameAfterTo(s State) (string, bool) {
	for i, line := range s.Lines {
		if !startsWithTo(line) {
			continue
		}
		for j := i + 1; j < len(s.Lines) && j <= i+toLookahead; j++ {
			next := s.Lines[j]
			if isLiteralTo(next) || textclean.HasMaskedRun(next) {
				continue
			}
			words := textclean.LatinWords(next)
			if textclean.AlphaWordCount(words) < minNameWords {
				continue
			}
			if v := textclean.Sanitize(words); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// nameNearDOB collects up to four lines above the DOB line, nearest
// first, and takes the second-to-last one collected. The line right
// above DOB is usually a label or gender line while the name sits
// higher up on the card.
func (r *Resolver) nameNearDOB(s State) (string, bool) {
	if s.DOBIndex < 0 {
		return "", false
	}
	var possible []string
	for i := s.DOBIndex - 1; i >= 0 && i >= s.DOBIndex-nameWindow; i-- {
		cl := textclean.CleanLine(s.Lines[i])
		if cl == "" || r.lex.IsBoilerplate(strings.ToLower(cl)) {
			continue
		}
		if len(cl) >= minNameLineLen && len(cl) <= maxNameLineLen {
			possible = append(possible, cl)
		}
	}
	if len(possible) == 0 {
		return "", false
	}
	pick := possible[0]
	if len(possible) > 1 {
		pick = possible[len(possible)-2]
	}
	v := textclean.Sanitize(pick)
	return v, v != ""
}

// nameScan: first line of two or more words that is neither boilerplate
// nor the father name.
func (r *Resolver) nameScan(s State) (string, bool) {
	father := strings.ToLower(textclean.LatinWords(s.Father))
	for _, line := range s.Lines {
		words := textclean.LatinWords(line)
		lower := strings.ToLower(words)
		if textclean.AlphaWordCount(words) < minNameWords || r.lex.IsBoilerplate(lower) {
			continue
		}
		if father != "" && strings.Contains(lower, father) {
			continue
		}
		if v := textclean.Sanitize(words); v != "" {
			return v, true
		}
	}
	return "", false
}

func startsWithTo(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && strings.EqualFold(strings.TrimRight(fields[0], ",:."), "to")
}

func isLiteralTo(line string) bool {
	return strings.EqualFold(strings.Trim(strings.TrimSpace(line), ",:."), "to")
}
