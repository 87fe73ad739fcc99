/**
 * OCR Fusion Engine
 *
 * Runs every configured OCR backend over every candidate region,
 * scores each region's combined text for signal density and merges the
 * two best regions into the transcript handed to field resolution.
 */

package fusion

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/ocr"
	"github.com/adverant/nexus/idextract-worker/internal/regions"
	"github.com/adverant/nexus/idextract-worker/internal/textclean"
)

// TopRegions is how many regions contribute to the transcript.
const TopRegions = 2

// wordLineBonus rewards lines that look like "Label: Value" text.
const wordLineBonus = 40

var (
	reLetter   = regexp.MustCompile(`[A-Za-z]`)
	reWordLike = regexp.MustCompile(`[A-Za-z]{2,}`)
)

// RegionResult is the scored OCR output of one region.
type RegionResult struct {
	Label string
	Text  string
	Score int
}

// BackendFailure records a backend that produced nothing for a region.
type BackendFailure struct {
	Backend string
	Region  string
	Err     error
}

// Transcript is the merged text of the selected regions.
type Transcript struct {
	// Raw is the region texts joined by a blank line.
	Raw string
	// Lines are Raw's trimmed, non-empty lines in order.
	Lines []string
}

// NewTranscript builds a transcript from already merged text.
func NewTranscript(raw string) Transcript {
	raw = strings.TrimSpace(raw)
	return Transcript{Raw: raw, Lines: textclean.SplitLines(raw)}
}

// Result is the outcome of one fusion run.
type Result struct {
	// Ranked holds every region, best first.
	Ranked     []RegionResult
	Transcript Transcript
	Failures   []BackendFailure
}

// Selected returns the regions merged into the transcript.
func (r *Result) Selected() []RegionResult {
	if len(r.Ranked) < TopRegions {
		return r.Ranked
	}
	return r.Ranked[:TopRegions]
}

// EngineConfig holds fusion configuration
type EngineConfig struct {
	// Backends in fixed order: primary multilingual first, general second.
	// Nil entries are treated as unavailable.
	Backends []ocr.Backend
	// Parallelism bounds concurrent region OCR. Values < 1 mean 1.
	Parallelism int
	Logger      *logging.Logger
}

// Engine fuses multi-backend OCR output. Safe for concurrent use when
// its backends are.
type Engine struct {
	backends    []ocr.Backend
	parallelism int
	logger      *logging.Logger
}

// NewEngine creates a fusion engine
func NewEngine(cfg *EngineConfig) *Engine {
	p := cfg.Parallelism
	if p < 1 {
		p = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Fusion")
	}
	return &Engine{backends: cfg.Backends, parallelism: p, logger: logger}
}

// Fuse OCRs every region and merges the top-scoring two. It never
// fails: unavailable backends contribute empty text and an all-empty
// run yields an empty transcript.
func (e *Engine) Fuse(ctx context.Context, regs []regions.Region) *Result {
	texts := make([]string, len(regs))
	failures := make([][]BackendFailure, len(regs))

	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, r := range regs {
		i, r := i, r
		g.Go(func() error {
			texts[i], failures[i] = e.recognizeRegion(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]RegionResult, len(regs))
	for i, r := range regs {
		results[i] = RegionResult{Label: r.Label, Text: texts[i], Score: Score(texts[i])}
	}

	res := Merge(results)
	for _, f := range failures {
		res.Failures = append(res.Failures, f...)
	}

	for _, r := range res.Ranked {
		e.logger.Debug("Region scored", "label", r.Label, "score", r.Score, "chars", len(r.Text))
	}
	return res
}

// recognizeRegion runs the backends in order and joins their non-empty
// outputs with a newline.
func (e *Engine) recognizeRegion(ctx context.Context, r regions.Region) (string, []BackendFailure) {
	var (
		parts    []string
		failures []BackendFailure
	)
	for _, b := range e.backends {
		if b == nil {
			continue
		}
		lines, err := b.Recognize(ctx, r.Image)
		if err != nil {
			fe := ierrors.NewBackendUnavailableError(b.Name(), r.Label, err)
			e.logger.Warn("OCR backend failed, using empty output", "backend", b.Name(), "region", r.Label, "error", err)
			failures = append(failures, BackendFailure{Backend: b.Name(), Region: r.Label, Err: fe})
			continue
		}
		tagged := make([]ocr.TextLine, len(lines))
		for i, l := range lines {
			l.SourceRegion = r.Label
			tagged[i] = l
		}
		if text := ocr.JoinLines(tagged); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), failures
}

// Score is the usefulness of a text block: its ASCII letter count plus
// a bonus for every line holding at least two letter runs of length 2+.
func Score(text string) int {
	score := len(reLetter.FindAllStringIndex(text, -1))
	for _, line := range strings.Split(text, "\n") {
		if len(reWordLike.FindAllStringIndex(line, 2)) >= 2 {
			score += wordLineBonus
		}
	}
	return score
}

// Merge ranks region results and joins the top two into a transcript.
func Merge(results []RegionResult) *Result {
	ranked := make([]RegionResult, len(results))
	copy(ranked, results)
	Rank(ranked)

	res := &Result{Ranked: ranked}
	parts := make([]string, 0, TopRegions)
	for _, r := range res.Selected() {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	res.Transcript = NewTranscript(strings.Join(parts, "\n\n"))
	return res
}

// Rank sorts by score descending, breaking ties by label priority.
func Rank(results []RegionResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		pi, pj := labelPriority(results[i].Label), labelPriority(results[j].Label)
		if pi != pj {
			return pi < pj
		}
		return results[i].Label < results[j].Label
	})
}

func labelPriority(label string) int {
	for i, l := range regions.Labels {
		if l == label {
			return i
		}
	}
	return len(regions.Labels)
}
