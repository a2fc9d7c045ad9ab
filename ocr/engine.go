// Package ocr provides the bounded-region text recognition the gateway runs
// in-process, behind an engine interface so providers can be swapped or
// chained without touching call sites.
package ocr

import "context"

// Region describes a rectangular area in pixel coordinates with the origin
// in the upper-left corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input encapsulates a single image submitted for OCR.
type Input struct {
	// Image is the encoded image payload (PNG or JPEG).
	Image []byte
	// Languages is a list of trained-data hints, e.g. "jpn", "eng".
	Languages []string
	// Region restricts recognition to a subsection of the image. Nil means
	// the full image is processed.
	Region *Region
	// DPI carries the effective dots-per-inch; zero means unknown.
	DPI int
}

// Result captures OCR output for a single input image.
type Result struct {
	// Text is the linearized recognized text.
	Text string
	// Confidence is the mean word confidence in [0,1]; zero when the engine
	// cannot report one.
	Confidence float64
	// Engine names the engine that produced the result.
	Engine string
}

// Engine is the OCR provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}
