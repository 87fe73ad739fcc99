// Package dates finds date-of-birth candidates in an OCR transcript,
// ranks them by label context and plausibility, and derives age.
package dates

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/lexicon"
	"github.com/adverant/nexus/idextract-worker/internal/textclean"
)

// Priority tiers. Tier 1 is reserved and never assigned.
const (
	TierDefault    = 0
	TierBirthLabel = 2
)

// DOBLayout is the canonical external form of a date of birth.
const DOBLayout = "02/01/2006"

// MaxExplained is how many ranked candidates are kept for explanation.
const MaxExplained = 5

// Age windows.
const (
	minChosenAge   = 0
	maxAge         = 120
	minPlausible   = 3
	minAdultAge    = 16
	maxAdultRange  = 80
	plausibleBonus = 10
	adultBonus     = 5
)

// Date shapes in precedence order: D/M/Y (2-4 digit year), D Month YYYY,
// Month D, YYYY and Y/M/D.
var reDateShape = regexp.MustCompile(
	`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b` +
		`|\b\d{1,2}\s+[A-Za-z]{3,}\s+\d{4}\b` +
		`|\b[A-Za-z]{3,}\s+\d{1,2},\s*\d{4}\b` +
		`|\b\d{4}[/\-]\d{1,2}[/\-]\d{1,2}\b`)

// reLooseShape is used on the unsegmented text, where \s+ may span a
// line wrap.
var reLooseShape = regexp.MustCompile(
	`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b` +
		`|\b\d{1,2}\s+[A-Za-z]{3,}\s+\d{4}\b`)

var rePunct = regexp.MustCompile(`[.,]`)

// parseLayouts are tried in order; the first success wins.
var parseLayouts = []string{
	"2/1/2006", "2-1-2006", "2006-1-2", "2006/1/2",
	"2/1/06", "2-1-06",
	"2 Jan 2006", "2 January 2006", "Jan 2 2006", "January 2 2006",
}

// Candidate is a successfully parsed date found in the transcript.
type Candidate struct {
	Date         time.Time
	SourceLine   string
	LineIndex    int
	PriorityTier int
	Plausibility int
	Age          int
}

// Source tells where the resolved date of birth came from.
type Source string

const (
	SourceNone        Source = ""
	SourceRanked      Source = "ranked"
	SourceRawFallback Source = "raw_fallback"
)

// Resolution is the outcome of date-of-birth resolution.
type Resolution struct {
	// DOB is zero when no date of birth was chosen.
	DOB       time.Time
	Age       int
	LineIndex int
	Source    Source
	// Ranked holds the top ranked primary-scan candidates.
	Ranked []Candidate
	// Total is the number of primary-scan candidates before truncation.
	Total int
	// Rejected is set when the top ranked candidate failed the age guard.
	Rejected *Candidate
}

// Found reports whether a date of birth was chosen.
func (r *Resolution) Found() bool { return r.Source != SourceNone }

// DOBString returns the DD/MM/YYYY form, or "" when nothing was chosen.
func (r *Resolution) DOBString() string {
	if !r.Found() {
		return ""
	}
	return FormatDOB(r.DOB)
}

// Extractor finds and ranks dates. It is a pure function of its input
// and the injected clock.
type Extractor struct {
	lex *lexicon.Lexicon
	now func() time.Time
}

// NewExtractor creates an extractor. A nil now uses time.Now.
func NewExtractor(lex *lexicon.Lexicon, now func() time.Time) *Extractor {
	if lex == nil {
		lex = lexicon.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Extractor{lex: lex, now: now}
}

// Extract scans every line in order and returns all parseable date
// candidates, unranked.
func (e *Extractor) Extract(lines []string) []Candidate {
	today := e.now()
	var out []Candidate
	for i, line := range lines {
		tier := e.tier(line)
		for _, m := range reDateShape.FindAllString(line, -1) {
			d, ok := Parse(m)
			if !ok {
				continue
			}
			age := Age(d, today)
			out = append(out, Candidate{
				Date:         d,
				SourceLine:   line,
				LineIndex:    i,
				PriorityTier: tier,
				Plausibility: Plausibility(age),
				Age:          age,
			})
		}
	}
	return out
}

// tier is TierBirthLabel for lines with a birth label, TierDefault
// otherwise. Issue/enrolment/download labels always win.
func (e *Extractor) tier(line string) int {
	lower := strings.ToLower(line)
	tier := TierDefault
	if e.lex.HasBirthLabel(lower) {
		tier = TierBirthLabel
	}
	if e.lex.HasSuppressLabel(lower) {
		tier = min(tier, TierDefault)
	}
	return tier
}

// Rank orders candidates by tier, then plausibility, then most recent
// date. Equal candidates keep transcript order.
func Rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.PriorityTier != b.PriorityTier {
			return a.PriorityTier > b.PriorityTier
		}
		if a.Plausibility != b.Plausibility {
			return a.Plausibility > b.Plausibility
		}
		return a.Date.After(b.Date)
	})
}

// Resolve picks the date of birth. The top ranked candidate is used
// only when its age is within [0,120]; otherwise raw holds the
// fallback scan across line wraps.
func (e *Extractor) Resolve(lines []string, raw string) *Resolution {
	cands := e.Extract(lines)
	Rank(cands)

	res := &Resolution{LineIndex: -1, Total: len(cands)}
	res.Ranked = cands[:min(len(cands), MaxExplained)]

	if len(cands) > 0 {
		top := cands[0]
		if top.Age >= minChosenAge && top.Age <= maxAge {
			res.DOB, res.Age, res.LineIndex, res.Source = top.Date, top.Age, top.LineIndex, SourceRanked
			return res
		}
		res.Rejected = &top
	}

	if c, ok := e.rawFallback(raw); ok {
		res.DOB, res.Age, res.LineIndex, res.Source = c.Date, c.Age, c.LineIndex, SourceRawFallback
	}
	return res
}

// rawFallback rescans unsegmented text, keeping plausible ages and
// preferring adults, then the most recent date.
func (e *Extractor) rawFallback(raw string) (Candidate, bool) {
	today := e.now()
	var cands []Candidate
	for _, loc := range reLooseShape.FindAllStringIndex(raw, -1) {
		d, ok := Parse(raw[loc[0]:loc[1]])
		if !ok {
			continue
		}
		age := Age(d, today)
		if age < minPlausible || age > maxAge {
			continue
		}
		cands = append(cands, Candidate{
			Date:         d,
			SourceLine:   raw[loc[0]:loc[1]],
			LineIndex:    lineIndexAt(raw, loc[0]),
			Plausibility: Plausibility(age),
			Age:          age,
		})
	}
	if len(cands) == 0 {
		return Candidate{}, false
	}

	sort.SliceStable(cands, func(i, j int) bool {
		ai, aj := cands[i].Age >= minAdultAge, cands[j].Age >= minAdultAge
		if ai != aj {
			return ai
		}
		return cands[i].Age < cands[j].Age
	})
	return cands[0], true
}

// lineIndexAt maps a byte offset in raw to the index of its line in
// textclean.SplitLines(raw).
func lineIndexAt(raw string, offset int) int {
	prefix := raw[:offset]
	n := len(textclean.SplitLines(prefix))
	partial := prefix[strings.LastIndex(prefix, "\n")+1:]
	if strings.TrimSpace(partial) == "" {
		return n
	}
	return n - 1
}

// Parse normalises punctuation and whitespace and tries every known
// layout. Unparseable strings report false.
func Parse(s string) (time.Time, bool) {
	s = textclean.CollapseSpaces(rePunct.ReplaceAllString(s, " "))
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Plausibility scores how realistic an age is for a card holder.
func Plausibility(age int) int {
	score := 0
	if age >= minPlausible && age <= maxAge {
		score = plausibleBonus
		if age >= minAdultAge && age <= maxAdultRange {
			score += adultBonus
		}
	}
	return score
}

// Age is the number of whole years between dob and today, one less if
// this year's birthday has not happened yet.
func Age(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// FormatDOB renders the canonical DD/MM/YYYY form.
func FormatDOB(t time.Time) string {
	return t.Format(DOBLayout)
}

// ParseDOB reads a DD/MM/YYYY date (one-digit day or month accepted).
func ParseDOB(s string) (time.Time, bool) {
	t, err := time.Parse("2/1/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AgeFromDOB derives age from a DD/MM/YYYY string. ok is false when the
// string is empty or malformed.
func AgeFromDOB(dob string, today time.Time) (int, bool) {
	t, ok := ParseDOB(dob)
	if !ok {
		return 0, false
	}
	return Age(t, today), true
}
