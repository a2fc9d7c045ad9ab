package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// RegionResult is what the gateway returns for a region OCR call.
type RegionResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Engine     string  `json:"engine"`
	Region     Region  `json:"region"`
}

// RegionProcessor runs OCR on a bounded region of a page image with a
// primary engine and at most one fallback attempt. The fallback fires when
// the primary errors, returns empty text, or reports confidence below the
// threshold. There is no retry beyond that single switch.
type RegionProcessor struct {
	Primary       Engine
	Fallback      Engine // optional
	MinConfidence float64
	Languages     []string
	Log           *slog.Logger
}

func NewRegionProcessor(primary, fallback Engine, languages []string) *RegionProcessor {
	return &RegionProcessor{
		Primary:       primary,
		Fallback:      fallback,
		MinConfidence: 0.1,
		Languages:     languages,
		Log:           slog.Default(),
	}
}

// ProcessFile reads a page image from disk and recognizes the given region.
func (p *RegionProcessor) ProcessFile(ctx context.Context, imagePath string, region Region, languages []string) (RegionResult, error) {
	if region.IsEmpty() {
		return RegionResult{}, fmt.Errorf("ocr: non-positive region %gx%g", region.Width, region.Height)
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return RegionResult{}, fmt.Errorf("read page image: %w", err)
	}
	return p.Process(ctx, data, region, languages)
}

// Process recognizes a region of an in-memory image.
func (p *RegionProcessor) Process(ctx context.Context, imageData []byte, region Region, languages []string) (RegionResult, error) {
	if len(languages) == 0 {
		languages = p.Languages
	}
	in := Input{Image: imageData, Languages: languages, Region: &region}

	res, primaryErr := p.Primary.Recognize(ctx, in)
	if primaryErr == nil && res.Text != "" && res.Confidence >= p.MinConfidence {
		return RegionResult{Text: res.Text, Confidence: res.Confidence, Engine: res.Engine, Region: region}, nil
	}

	if p.Fallback == nil {
		if primaryErr != nil {
			return RegionResult{}, fmt.Errorf("ocr %s: %w", p.Primary.Name(), primaryErr)
		}
		// Low-confidence or empty primary output is still the best we have.
		return RegionResult{Text: res.Text, Confidence: res.Confidence, Engine: res.Engine, Region: region}, nil
	}

	p.Log.Warn("primary OCR engine unsatisfactory, falling back",
		"primary", p.Primary.Name(), "fallback", p.Fallback.Name(),
		"err", primaryErr, "confidence", res.Confidence)

	fres, err := p.Fallback.Recognize(ctx, in)
	if err != nil {
		if primaryErr != nil {
			return RegionResult{}, fmt.Errorf("ocr %s: %v; fallback %s: %w", p.Primary.Name(), primaryErr, p.Fallback.Name(), err)
		}
		return RegionResult{Text: res.Text, Confidence: res.Confidence, Engine: res.Engine, Region: region}, nil
	}
	return RegionResult{Text: fres.Text, Confidence: fres.Confidence, Engine: fres.Engine, Region: region}, nil
}
