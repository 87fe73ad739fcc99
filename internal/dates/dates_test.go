package dates

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAgeBirthdayBoundary(t *testing.T) {
	dob, ok := ParseDOB("15/08/1990")
	if !ok {
		t.Fatal("ParseDOB failed")
	}
	tests := []struct {
		today time.Time
		want  int
	}{
		{day(2024, 8, 10), 33},
		{day(2024, 8, 15), 34},
		{day(2024, 8, 20), 34},
		{day(2024, 1, 1), 33},
	}
	for _, tc := range tests {
		if got := Age(dob, tc.today); got != tc.want {
			t.Errorf("Age(15/08/1990, %s) = %d, want %d", tc.today.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"12/04/1988", day(1988, 4, 12), true},
		{"1-2-2001", day(2001, 2, 1), true},
		{"1988-04-12", day(1988, 4, 12), true},
		{"1988/4/12", day(1988, 4, 12), true},
		{"12/04/88", day(1988, 4, 12), true},
		{"12/04/05", day(2005, 4, 12), true},
		{"12 April 1988", day(1988, 4, 12), true},
		{"12 apr 1988", day(1988, 4, 12), true},
		{"Apr 12, 1988", day(1988, 4, 12), true},
		{"September 3,1975", day(1975, 9, 3), true},
		{"31/02/1990", time.Time{}, false},
		{"12 DOB 1988", time.Time{}, false},
		{"12/04/198", time.Time{}, false},
	}
	for _, tc := range tests {
		got, ok := Parse(tc.in)
		if ok != tc.ok || !got.Equal(tc.want) {
			t.Errorf("Parse(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPlausibility(t *testing.T) {
	tests := []struct{ age, want int }{
		{-5, 0}, {0, 0}, {2, 0}, {3, 10}, {15, 10}, {16, 15}, {80, 15}, {81, 10}, {120, 10}, {121, 0}, {200, 0},
	}
	for _, tc := range tests {
		if got := Plausibility(tc.age); got != tc.want {
			t.Errorf("Plausibility(%d) = %d, want %d", tc.age, got, tc.want)
		}
	}
}

func TestExtractTiers(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	cands := e.Extract([]string{
		"DOB: 12/04/1988",
		"Enrolment Date of Birth 01/02/2000",
		"Issue Date: 03/03/2020",
		"12 April 1988 and 1988-04-13",
		"பிறந்த நாள் 05/06/1970",
	})

	want := []struct {
		line int
		tier int
	}{
		{0, TierBirthLabel},
		{1, TierDefault},
		{2, TierDefault},
		{3, TierDefault},
		{3, TierDefault},
		{4, TierBirthLabel},
	}
	if len(cands) != len(want) {
		t.Fatalf("got %d candidates, want %d: %+v", len(cands), len(want), cands)
	}
	for i, w := range want {
		if cands[i].LineIndex != w.line || cands[i].PriorityTier != w.tier {
			t.Errorf("candidate %d = line %d tier %d, want line %d tier %d",
				i, cands[i].LineIndex, cands[i].PriorityTier, w.line, w.tier)
		}
	}
	if cands[0].Age != 36 || cands[0].Plausibility != 15 {
		t.Errorf("candidate 0 age=%d plausibility=%d", cands[0].Age, cands[0].Plausibility)
	}
}

func TestResolvePriorityDominatesRecency(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	res := e.Resolve([]string{"Valid till 01/01/2050", "DOB 15/06/1995"}, "")

	if res.Source != SourceRanked {
		t.Fatalf("source = %q, want ranked", res.Source)
	}
	if got := res.DOBString(); got != "15/06/1995" {
		t.Errorf("dob = %q, want 15/06/1995", got)
	}
	if res.Age != 29 || res.LineIndex != 1 {
		t.Errorf("age=%d line=%d", res.Age, res.LineIndex)
	}
	if len(res.Ranked) != 2 || res.Ranked[1].Date.Year() != 2050 {
		t.Errorf("ranked = %+v", res.Ranked)
	}
}

func TestRankPrefersMostRecentAmongEquals(t *testing.T) {
	cands := []Candidate{
		{Date: day(1980, 1, 1), Plausibility: 15},
		{Date: day(1990, 1, 1), Plausibility: 15},
		{Date: day(2000, 1, 1), Plausibility: 10},
	}
	Rank(cands)
	if cands[0].Date.Year() != 1990 || cands[1].Date.Year() != 1980 || cands[2].Date.Year() != 2000 {
		t.Errorf("Rank() order = %v, %v, %v", cands[0].Date, cands[1].Date, cands[2].Date)
	}
}

func TestResolveImplausibleGuard(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	lines := []string{"DOB: 01/01/1824"}
	res := e.Resolve(lines, "DOB: 01/01/1824")

	if res.Found() || res.DOBString() != "" {
		t.Fatalf("dob = %q, want empty", res.DOBString())
	}
	if res.Rejected == nil || res.Rejected.Age != 200 {
		t.Errorf("rejected = %+v, want age 200", res.Rejected)
	}
	if len(res.Ranked) != 1 {
		t.Errorf("ranked kept %d, want 1", len(res.Ranked))
	}
}

func TestResolveRawFallbackPrefersAdult(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	lines := []string{"DOB: 01/01/1800", "01/01/2015", "15/08/1990"}
	raw := "DOB: 01/01/1800\n01/01/2015\n15/08/1990"

	res := e.Resolve(lines, raw)
	if res.Source != SourceRawFallback {
		t.Fatalf("source = %q, want raw_fallback", res.Source)
	}
	if res.DOBString() != "15/08/1990" || res.LineIndex != 2 || res.Age != 33 {
		t.Errorf("got dob=%s line=%d age=%d", res.DOBString(), res.LineIndex, res.Age)
	}
	if res.Rejected == nil {
		t.Error("expected rejected top candidate")
	}
}

func TestResolveRawFallbackAcrossLineWrap(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	raw := "Anil Sharma\nDOB 12\nApril 1988\nMALE"
	lines := []string{"Anil Sharma", "DOB 12", "April 1988", "MALE"}

	res := e.Resolve(lines, raw)
	if res.Total != 0 {
		t.Errorf("primary scan found %d candidates, want 0", res.Total)
	}
	if res.DOBString() != "12/04/1988" || res.LineIndex != 1 {
		t.Errorf("got dob=%q line=%d", res.DOBString(), res.LineIndex)
	}
}

func TestResolveEmpty(t *testing.T) {
	res := NewExtractor(nil, nil).Resolve(nil, "")
	if res.Found() || len(res.Ranked) != 0 || res.LineIndex != -1 {
		t.Errorf("empty input resolved to %+v", res)
	}
}

func TestResolveKeepsTopFive(t *testing.T) {
	e := NewExtractor(nil, fixedClock(day(2024, 8, 10)))
	lines := []string{
		"01/01/1980", "01/01/1981", "01/01/1982",
		"01/01/1983", "01/01/1984", "01/01/1985", "01/01/1986",
	}
	res := e.Resolve(lines, "")
	if res.Total != 7 || len(res.Ranked) != MaxExplained {
		t.Errorf("total=%d ranked=%d", res.Total, len(res.Ranked))
	}
	if res.DOBString() != "01/01/1986" {
		t.Errorf("dob = %s, want most recent", res.DOBString())
	}
}

func TestDOBRoundTrip(t *testing.T) {
	d, ok := ParseDOB("5/3/1999")
	if !ok {
		t.Fatal("ParseDOB failed")
	}
	if got := FormatDOB(d); got != "05/03/1999" {
		t.Errorf("FormatDOB = %q", got)
	}
	back, _ := ParseDOB(FormatDOB(d))
	if !back.Equal(d) {
		t.Errorf("round trip %v != %v", back, d)
	}
	if _, ok := ParseDOB(""); ok {
		t.Error("empty string parsed")
	}
	if age, ok := AgeFromDOB("15/08/1990", day(2024, 8, 20)); !ok || age != 34 {
		t.Errorf("AgeFromDOB = %d, %v", age, ok)
	}
}
