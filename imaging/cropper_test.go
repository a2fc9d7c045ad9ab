package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestImage(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(dir, "page_1_full.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func TestCropRegion(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 200, 100)

	c := NewCropper()
	res, err := c.CropRegion(src, BBox{X: 10, Y: 20, Width: 50, Height: 30}, dir, "el-1", "figure")
	if err != nil {
		t.Fatalf("CropRegion: %v", err)
	}
	if res.Width != 50 || res.Height != 30 {
		t.Fatalf("unexpected crop size: %dx%d", res.Width, res.Height)
	}
	if res.FileSize <= 0 {
		t.Fatalf("expected non-empty output file")
	}
	if !strings.HasPrefix(res.ImagePath, "figures/") {
		t.Fatalf("figure crop not under figures/: %s", res.ImagePath)
	}
	if _, err := os.Stat(res.FullPath); err != nil {
		t.Fatalf("output file missing: %v", err)
	}

	f, err := os.Open(res.FullPath)
	if err != nil {
		t.Fatalf("open crop: %v", err)
	}
	defer f.Close()
	cropped, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	b := cropped.Bounds()
	if b.Dx() != 50 || b.Dy() != 30 {
		t.Fatalf("decoded crop size: %dx%d", b.Dx(), b.Dy())
	}
}

func TestCropRegion_ClampsOutOfBounds(t *testing.T) {
	dir := t.TempDir()
	src := writeTestImage(t, dir, 100, 100)

	c := NewCropper()
	res, err := c.CropRegion(src, BBox{X: 80, Y: 90, Width: 500, Height: 500}, dir, "", "")
	if err != nil {
		t.Fatalf("CropRegion: %v", err)
	}
	if res.Width != 20 || res.Height != 10 {
		t.Fatalf("expected clamp to 20x10, got %dx%d", res.Width, res.Height)
	}
	if !strings.HasPrefix(res.ImagePath, "cropped/") {
		t.Fatalf("default crop not under cropped/: %s", res.ImagePath)
	}
}

func TestCropRegion_MissingSource(t *testing.T) {
	c := NewCropper()
	if _, err := c.CropRegion(filepath.Join(t.TempDir(), "nope.png"), BBox{Width: 1, Height: 1}, t.TempDir(), "", ""); err == nil {
		t.Fatalf("expected error for missing source")
	}
}
