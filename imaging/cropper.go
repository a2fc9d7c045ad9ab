// Package imaging performs the in-process image operations of the gateway:
// cropping rectangular regions out of rendered page images.
package imaging

import (
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// BBox is a crop rectangle in page-image pixel coordinates, origin top-left.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CropResult describes a saved crop.
type CropResult struct {
	ImagePath string `json:"image_path"` // relative to the output dir
	FullPath  string `json:"full_path"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FileSize  int64  `json:"file_size"`
	Clamped   BBox   `json:"crop_coordinates"`
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Cropper cuts regions out of page images and stores them as PNG.
type Cropper struct{}

func NewCropper() *Cropper { return &Cropper{} }

// CropRegion clamps the bbox into the source image, crops it, and saves the
// result under outputDir. Figures and pictures land in figures/, everything
// else in cropped/. The bbox is adjusted rather than rejected: x/y are
// clamped into the image and width/height shrink to fit, with a 1px floor.
func (c *Cropper) CropRegion(pageImagePath string, bbox BBox, outputDir, elementID, elementType string) (*CropResult, error) {
	f, err := os.Open(pageImagePath)
	if err != nil {
		return nil, fmt.Errorf("open source image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := img.Bounds()
	imgW := float64(bounds.Dx())
	imgH := float64(bounds.Dy())

	clamped := BBox{
		X: math.Max(0, math.Min(bbox.X, imgW)),
		Y: math.Max(0, math.Min(bbox.Y, imgH)),
	}
	clamped.Width = math.Max(1, math.Min(bbox.Width, imgW-clamped.X))
	clamped.Height = math.Max(1, math.Min(bbox.Height, imgH-clamped.Y))

	rect := image.Rect(
		bounds.Min.X+int(clamped.X),
		bounds.Min.Y+int(clamped.Y),
		bounds.Min.X+int(clamped.X+clamped.Width),
		bounds.Min.Y+int(clamped.Y+clamped.Height),
	).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("crop region outside image bounds")
	}

	si, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("image type %T does not support sub-images", img)
	}
	cropped := si.SubImage(rect)

	outPath := outputPath(outputDir, elementID, elementType)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	if err := png.Encode(out, cropped); err != nil {
		out.Close()
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	if err := out.Close(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(outputDir, outPath)
	if err != nil {
		rel = filepath.Base(outPath)
	}
	return &CropResult{
		ImagePath: filepath.ToSlash(rel),
		FullPath:  outPath,
		Width:     rect.Dx(),
		Height:    rect.Dy(),
		FileSize:  fi.Size(),
		Clamped:   clamped,
	}, nil
}

func outputPath(outputDir, elementID, elementType string) string {
	ts := time.Now().Format("20060102_150405.000")
	var name string
	switch {
	case elementID != "" && elementType != "":
		name = fmt.Sprintf("%s_%s_%s.png", elementType, elementID, ts)
	case elementID != "":
		name = fmt.Sprintf("element_%s_%s.png", elementID, ts)
	default:
		name = fmt.Sprintf("cropped_%s.png", ts)
	}
	subdir := "cropped"
	if elementType == "figure" || elementType == "picture" {
		subdir = "figures"
	}
	return filepath.Join(outputDir, subdir, name)
}
