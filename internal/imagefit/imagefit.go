// Package imagefit prepares images for Instagram's aspect-ratio and size
// limits.
package imagefit

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	// Decoders for every image type the publish form accepts.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Limits accepted by Instagram without modification.
const (
	MinRatio   = 0.8
	MaxRatio   = 1.91
	MinSide    = 320
	MaxSide    = 1440
	CanvasSide = 1080
	Quality    = 90
	Suffix     = "_igready.jpg"
)

// Fits reports whether a w×h image is accepted as is.
func Fits(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	ratio := float64(w) / float64(h)
	return ratio >= MinRatio && ratio <= MaxRatio &&
		w >= MinSide && w <= MaxSide &&
		h >= MinSide && h <= MaxSide
}

// Normalize returns path unchanged when the image already fits. Otherwise
// it shrinks the image to fit a white square canvas and writes a JPEG to a
// fresh temp file; the caller owns the returned file when changed is true.
func Normalize(path string) (out string, changed bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("imagefit: open: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", false, fmt.Errorf("imagefit: read %s: %w", filepath.Base(path), err)
	}
	if Fits(cfg.Width, cfg.Height) {
		return path, false, nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return "", false, fmt.Errorf("imagefit: rewind: %w", err)
	}
	src, _, err := image.Decode(f)
	if err != nil {
		return "", false, fmt.Errorf("imagefit: decode %s: %w", filepath.Base(path), err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out, err = writeJPEG(base+"-*"+Suffix, Letterbox(src, CanvasSide))
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// Letterbox shrinks src to fit inside a side×side square, preserving the
// aspect ratio, and centers it on a white background. Images smaller than
// the square are not enlarged.
func Letterbox(src image.Image, side int) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > side || h > side {
		if w >= h {
			h = max(1, h*side/w)
			w = side
		} else {
			w = max(1, w*side/h)
			h = side
		}
	}

	canvas := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	x0, y0 := (side-w)/2, (side-h)/2
	dst := image.Rect(x0, y0, x0+w, y0+h)
	draw.CatmullRom.Scale(canvas, dst, src, b, draw.Over, nil)
	return canvas
}

func writeJPEG(pattern string, img image.Image) (path string, err error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("imagefit: create: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("imagefit: close: %w", cerr)
		}
		if err != nil {
			os.Remove(f.Name())
			path = ""
		}
	}()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: Quality}); err != nil {
		return "", fmt.Errorf("imagefit: encode: %w", err)
	}
	return f.Name(), nil
}
