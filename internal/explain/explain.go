// Package explain packages the decisions behind an extraction (region
// scores, ranked date candidates, the rules that fired and any issues)
// so a reviewer can audit or override the result.
package explain

import (
	"github.com/adverant/nexus/idextract-worker/internal/dates"
	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/fusion"
	"github.com/adverant/nexus/idextract-worker/internal/resolver"
)

// RegionScore is one region's fusion outcome. Page is 1-based; images
// are a single page.
type RegionScore struct {
	Page     int    `json:"page"`
	Label    string `json:"label"`
	Score    int    `json:"score"`
	Chars    int    `json:"chars"`
	Selected bool   `json:"selected"`
}

// DateEntry is one ranked date candidate.
type DateEntry struct {
	Date         string `json:"date"`
	Line         string `json:"line"`
	LineIndex    int    `json:"line_index"`
	Tier         int    `json:"tier"`
	Plausibility int    `json:"plausibility"`
	Age          int    `json:"age"`
}

// Issue is a non-fatal condition met during extraction.
type Issue struct {
	Code    ierrors.ErrorCode `json:"code"`
	Field   string            `json:"field,omitempty"`
	Message string            `json:"message"`
}

// Explanation is the inspectable metadata attached to every record. It
// is deterministic for identical input.
type Explanation struct {
	Regions         []RegionScore `json:"regions"`
	CandidateDates  []DateEntry   `json:"candidate_dates"`
	TotalCandidates int           `json:"total_candidates"`
	LinesCount      int           `json:"lines_count"`
	DOBSource       dates.Source  `json:"dob_source"`
	DOBLine         int           `json:"dob_line"`
	NameRule        string        `json:"name_rule"`
	FatherRule      string        `json:"father_rule"`
	Issues          []Issue       `json:"issues"`
}

// Input gathers the intermediate results of one run. Pages holds one
// fusion result per document page and is empty when extraction started
// from text.
type Input struct {
	Pages      []*fusion.Result
	Dates      *dates.Resolution
	Fields     resolver.Fields
	LinesCount int
}

// Build assembles the explanation.
func Build(in Input) *Explanation {
	ex := &Explanation{
		Regions:        []RegionScore{},
		CandidateDates: []DateEntry{},
		Issues:         []Issue{},
		LinesCount:     in.LinesCount,
		DOBLine:        -1,
		NameRule:       in.Fields.NameRule,
		FatherRule:     in.Fields.FatherRule,
	}

	for page, fused := range in.Pages {
		if fused == nil {
			continue
		}
		for i, r := range fused.Ranked {
			ex.Regions = append(ex.Regions, RegionScore{
				Page:     page + 1,
				Label:    r.Label,
				Score:    r.Score,
				Chars:    len(r.Text),
				Selected: i < fusion.TopRegions,
			})
		}
		for _, f := range fused.Failures {
			ex.Issues = append(ex.Issues, Issue{
				Code:    ierrors.ErrorBackendUnavailable,
				Field:   f.Region,
				Message: ierrors.NewBackendUnavailableError(f.Backend, f.Region, nil).Message,
			})
		}
	}

	dobFound := false
	if d := in.Dates; d != nil {
		for _, c := range d.Ranked {
			ex.CandidateDates = append(ex.CandidateDates, DateEntry{
				Date:         dates.FormatDOB(c.Date),
				Line:         c.SourceLine,
				LineIndex:    c.LineIndex,
				Tier:         c.PriorityTier,
				Plausibility: c.Plausibility,
				Age:          c.Age,
			})
		}
		ex.TotalCandidates = d.Total
		ex.DOBSource = d.Source
		ex.DOBLine = d.LineIndex
		dobFound = d.Found()

		if d.Rejected != nil {
			ex.Issues = append(ex.Issues, Issue{
				Code:    ierrors.ErrorImplausibleDate,
				Field:   "dob",
				Message: ierrors.NewImplausibleDateError(dates.FormatDOB(d.Rejected.Date), d.Rejected.Age).Message,
			})
		}
	}

	for _, missing := range []struct {
		field string
		found bool
	}{
		{"name", in.Fields.Name != ""},
		{"father_name", in.Fields.Father != ""},
		{"dob", dobFound},
	} {
		if !missing.found {
			ex.Issues = append(ex.Issues, Issue{
				Code:    ierrors.ErrorNoFieldFound,
				Field:   missing.field,
				Message: ierrors.NewNoFieldFoundError(missing.field).Message,
			})
		}
	}

	return ex
}
