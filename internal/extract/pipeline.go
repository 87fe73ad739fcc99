/**
 * Extraction Pipeline
 *
 * One run per uploaded document (an image, or a PDF of page scans):
 * regions -> fused OCR transcript -> ranked date candidates ->
 * resolved fields -> record + explanation.
 * The pipeline holds only injected read-only collaborators, so runs
 * share no mutable state and a single Pipeline serves concurrent jobs.
 */

package extract

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/adverant/nexus/idextract-worker/internal/dates"
	ierrors "github.com/adverant/nexus/idextract-worker/internal/errors"
	"github.com/adverant/nexus/idextract-worker/internal/explain"
	"github.com/adverant/nexus/idextract-worker/internal/fusion"
	"github.com/adverant/nexus/idextract-worker/internal/lexicon"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/pdfscan"
	"github.com/adverant/nexus/idextract-worker/internal/regions"
	"github.com/adverant/nexus/idextract-worker/internal/resolver"
)

// Record is the resolved identity record. Age is set only together
// with DOB.
type Record struct {
	Name           string               `json:"name"`
	FatherName     string               `json:"father_name"`
	DOB            string               `json:"dob"`
	Age            int                  `json:"age"`
	ConfidenceMeta *explain.Explanation `json:"confidence_meta"`
}

// Result is a record plus the transcript it was resolved from.
type Result struct {
	Record     *Record       `json:"record"`
	Transcript string        `json:"transcript"`
	Duration   time.Duration `json:"-"`
}

// PipelineConfig holds the injected collaborators.
type PipelineConfig struct {
	Regions *regions.Generator
	Fusion  *fusion.Engine
	Lexicon *lexicon.Lexicon
	// Now is the clock used for age derivation. Nil uses time.Now.
	Now    func() time.Time
	Logger *logging.Logger
}

// Pipeline runs extractions.
type Pipeline struct {
	regions  *regions.Generator
	fusion   *fusion.Engine
	dates    *dates.Extractor
	resolver *resolver.Resolver
	now      func() time.Time
	logger   *logging.Logger
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(cfg *PipelineConfig) *Pipeline {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}
	gen := cfg.Regions
	if gen == nil {
		gen = regions.NewGenerator(0)
	}
	eng := cfg.Fusion
	if eng == nil {
		eng = fusion.NewEngine(&fusion.EngineConfig{Logger: logger})
	}
	return &Pipeline{
		regions:  gen,
		fusion:   eng,
		dates:    dates.NewExtractor(cfg.Lexicon, now),
		resolver: resolver.New(cfg.Lexicon),
		now:      now,
		logger:   logger,
	}
}

// Extract runs the full pipeline on a decoded image. The only error is
// context cancellation; every extraction failure degrades to empty
// fields.
func (p *Pipeline) Extract(ctx context.Context, img image.Image) (*Result, error) {
	return p.extractPages(ctx, []image.Image{img})
}

// ExtractBytes decodes an image or a scanned PDF and runs the pipeline.
// Each PDF page is fused on its own and the page transcripts are joined
// by a blank line before fields are resolved.
func (p *Pipeline) ExtractBytes(ctx context.Context, jobID string, data []byte) (*Result, error) {
	if pdfscan.IsPDF(data) {
		pages, err := pdfscan.Pages(data)
		if err != nil {
			return nil, ierrors.NewImageDecodeError(jobID, err)
		}
		imgs := make([]image.Image, len(pages))
		for i, pg := range pages {
			imgs[i] = pg.Image
		}
		return p.extractPages(ctx, imgs)
	}

	img, _, err := regions.Decode(data)
	if err != nil {
		return nil, ierrors.NewImageDecodeError(jobID, err)
	}
	return p.Extract(ctx, img)
}

func (p *Pipeline) extractPages(ctx context.Context, imgs []image.Image) (*Result, error) {
	start := time.Now()

	fused := make([]*fusion.Result, 0, len(imgs))
	parts := make([]string, 0, len(imgs))
	for _, img := range imgs {
		f := p.fusion.Fuse(ctx, p.regions.Generate(img))
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fused = append(fused, f)
		if f.Transcript.Raw != "" {
			parts = append(parts, f.Transcript.Raw)
		}
	}

	tr := fusion.NewTranscript(strings.Join(parts, "\n\n"))
	res := p.resolve(tr, fused)
	res.Duration = time.Since(start)

	p.logger.Info("Extraction completed",
		"pages", len(imgs),
		"lines", len(tr.Lines),
		"dob_source", res.Record.ConfidenceMeta.DOBSource,
		"name_rule", res.Record.ConfidenceMeta.NameRule,
		"father_rule", res.Record.ConfidenceMeta.FatherRule,
		"duration_ms", res.Duration.Milliseconds())
	return res, nil
}

// ExtractText resolves fields from an already merged transcript.
func (p *Pipeline) ExtractText(text string) *Result {
	return p.resolve(fusion.NewTranscript(text), nil)
}

func (p *Pipeline) resolve(tr fusion.Transcript, pages []*fusion.Result) *Result {
	dob := p.dates.Resolve(tr.Lines, tr.Raw)
	fields := p.resolver.Resolve(tr.Lines, dob.LineIndex)

	rec := &Record{
		Name:       fields.Name,
		FatherName: fields.Father,
		ConfidenceMeta: explain.Build(explain.Input{
			Pages:      pages,
			Dates:      dob,
			Fields:     fields,
			LinesCount: len(tr.Lines),
		}),
	}
	if dob.Found() {
		rec.DOB = dob.DOBString()
		rec.Age = dob.Age
	}

	return &Result{Record: rec, Transcript: tr.Raw}
}

// Now returns the pipeline clock's current time.
func (p *Pipeline) Now() time.Time {
	return p.now()
}
