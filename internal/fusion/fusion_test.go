package fusion

import (
	"context"
	"errors"
	"image"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/adverant/nexus/idextract-worker/internal/ocr"
	"github.com/adverant/nexus/idextract-worker/internal/regions"
)

// widthBackend returns canned lines keyed by the region image width.
type widthBackend struct {
	name  string
	texts map[int][]ocr.TextLine
	err   error
	calls atomic.Int32
}

func (b *widthBackend) Name() string { return b.name }

func (b *widthBackend) Recognize(ctx context.Context, img image.Image) ([]ocr.TextLine, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return b.texts[img.Bounds().Dx()], nil
}

func region(label string, width int) regions.Region {
	return regions.Region{Label: label, Image: image.NewGray(image.Rect(0, 0, width, 10))}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"single word line", "MALE", 4},
		{"label value line", "DOB: 12/04/1988\nAnil Sharma", 3 + 10 + 40},
		{"noise", "x1y2 z 3", 3},
		{"non latin ignored", "அனில்", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.text); got != tc.want {
				t.Errorf("Score(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestMergeSelectsTopTwoWithTieBreak(t *testing.T) {
	res := Merge([]RegionResult{
		{Label: regions.LabelTopLeft, Text: "top left text", Score: 45},
		{Label: regions.LabelFull, Text: "full page text", Score: 120},
		{Label: regions.LabelPhotoRight, Text: "photo right text", Score: 45},
	})

	if got, want := res.Transcript.Raw, "full page text\n\nphoto right text"; got != want {
		t.Errorf("transcript = %q, want %q", got, want)
	}
	if len(res.Selected()) != 2 {
		t.Errorf("selected %d regions, want 2", len(res.Selected()))
	}
	wantOrder := []string{regions.LabelFull, regions.LabelPhotoRight, regions.LabelTopLeft}
	for i, r := range res.Ranked {
		if r.Label != wantOrder[i] {
			t.Errorf("rank %d = %s, want %s", i, r.Label, wantOrder[i])
		}
	}
}

func TestRankUnknownLabelsLast(t *testing.T) {
	rs := []RegionResult{
		{Label: "zeta", Score: 10},
		{Label: "alpha", Score: 10},
		{Label: regions.LabelFull, Score: 10},
	}
	Rank(rs)
	got := []string{rs[0].Label, rs[1].Label, rs[2].Label}
	want := []string{regions.LabelFull, "alpha", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Rank() = %v, want %v", got, want)
	}
}

func TestFuseOrdersBackendsAndSkipsFailures(t *testing.T) {
	primary := &widthBackend{name: "primary", texts: map[int][]ocr.TextLine{
		100: {
			{Content: "DOB: 12/04/1988", VerticalPosition: 50},
			{Content: "Anil Sharma", VerticalPosition: 10},
		},
	}}
	general := &widthBackend{name: "general", texts: map[int][]ocr.TextLine{
		100: {{Content: "S/O: Suresh Sharma", VerticalPosition: 5}},
		200: {{Content: "Government of India", VerticalPosition: 1}},
	}}
	broken := &widthBackend{name: "broken", err: errors.New("engine not initialised")}

	e := NewEngine(&EngineConfig{Backends: []ocr.Backend{primary, nil, general, broken}, Parallelism: 3})
	res := e.Fuse(context.Background(), []regions.Region{
		region(regions.LabelPhotoRight, 100),
		region(regions.LabelTopLeft, 50),
		region(regions.LabelFull, 200),
	})

	want := "Anil Sharma\nDOB: 12/04/1988\nS/O: Suresh Sharma\n\nGovernment of India"
	if res.Transcript.Raw != want {
		t.Errorf("transcript = %q, want %q", res.Transcript.Raw, want)
	}
	if len(res.Transcript.Lines) != 4 {
		t.Errorf("lines = %v", res.Transcript.Lines)
	}
	if len(res.Failures) != 3 {
		t.Errorf("failures = %d, want one per region", len(res.Failures))
	}
	if broken.calls.Load() != 3 {
		t.Errorf("broken backend called %d times, want 3", broken.calls.Load())
	}
}

func TestFuseAllEmpty(t *testing.T) {
	e := NewEngine(&EngineConfig{})
	res := e.Fuse(context.Background(), []regions.Region{region(regions.LabelFull, 10)})

	if res.Transcript.Raw != "" || len(res.Transcript.Lines) != 0 {
		t.Errorf("expected empty transcript, got %q", res.Transcript.Raw)
	}
	if len(res.Ranked) != 1 || res.Ranked[0].Score != 0 {
		t.Errorf("ranked = %+v", res.Ranked)
	}
}

func TestFuseDeterministicAcrossParallelism(t *testing.T) {
	b := &widthBackend{name: "b", texts: map[int][]ocr.TextLine{
		10: {{Content: "Name: Anil Sharma"}},
		20: {{Content: "Father Suresh Sharma"}},
		30: {{Content: "Government of India Unique Identification"}},
		40: {{Content: "XX"}},
	}}
	regs := []regions.Region{
		region(regions.LabelPhotoRight, 10),
		region(regions.LabelTopLeft, 20),
		region(regions.LabelBottomCenter, 40),
		region(regions.LabelFull, 30),
	}

	seq := NewEngine(&EngineConfig{Backends: []ocr.Backend{b}, Parallelism: 1}).Fuse(context.Background(), regs)
	par := NewEngine(&EngineConfig{Backends: []ocr.Backend{b}, Parallelism: 4}).Fuse(context.Background(), regs)

	if !reflect.DeepEqual(seq.Ranked, par.Ranked) || seq.Transcript.Raw != par.Transcript.Raw {
		t.Errorf("parallel result differs:\nseq=%+v\npar=%+v", seq.Ranked, par.Ranked)
	}
}
