package imagefit

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h, color.RGBA{R: 200, A: 255})))
	p := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))
	return p
}

// ===================== Fits =====================

func TestFits(t *testing.T) {
	tests := []struct {
		w, h int
		want bool
	}{
		{1080, 1080, true},
		{320, 320, true},
		{1440, 1440, true},
		{800, 1000, true},  // 0.8
		{1146, 600, true},  // 1.91
		{799, 1000, false}, // below 0.8
		{1200, 600, false}, // 2.0
		{300, 300, false},  // too small
		{1500, 1500, false},
		{0, 100, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fits(tt.w, tt.h), "%dx%d", tt.w, tt.h)
	}
}

// ===================== Normalize =====================

func TestNormalizeSquarePassesThroughByteIdentical(t *testing.T) {
	in := writePNG(t, 600, 600)
	before, err := os.ReadFile(in)
	require.NoError(t, err)

	out, changed, err := Normalize(in)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, in, out)

	after, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestNormalizeWideImageLetterboxed(t *testing.T) {
	in := writePNG(t, 1500, 500) // ratio 3.0

	out, changed, err := Normalize(in)
	require.NoError(t, err)
	assert.True(t, changed)
	t.Cleanup(func() { os.Remove(out) })
	assert.NotEqual(t, filepath.Dir(in), filepath.Dir(out))
	assert.True(t, strings.HasSuffix(out, Suffix))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, CanvasSide, CanvasSide), img.Bounds())

	// Padding is white, content is centered.
	r, g, b, _ := img.At(540, 10).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
	r, g, _, _ = img.At(540, 540).RGBA()
	assert.Greater(t, r>>8, uint32(150))
	assert.Less(t, g>>8, uint32(60))
}

func TestNormalizeLeavesSourceDirAlone(t *testing.T) {
	in := writePNG(t, 1500, 500)
	existing := filepath.Join(filepath.Dir(in), "in"+Suffix)
	require.NoError(t, os.WriteFile(existing, []byte("mine"), 0o644))

	first, _, err := Normalize(in)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(first) })
	second, _, err := Normalize(in)
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(second) })

	assert.NotEqual(t, first, second)
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))

	entries, err := os.ReadDir(filepath.Dir(in))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNormalizeRejectsNonImage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.jpg")
	require.NoError(t, os.WriteFile(p, []byte("not an image"), 0o644))
	_, _, err := Normalize(p)
	assert.Error(t, err)
}

// ===================== Letterbox =====================

func TestLetterboxDoesNotUpscale(t *testing.T) {
	out := Letterbox(solid(100, 50, color.Black), CanvasSide)
	assert.Equal(t, CanvasSide, out.Bounds().Dx())
	// 100x50 placed at (490, 515); just outside is white.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(489, 540))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(540, 540))
}

func TestLetterboxTallImage(t *testing.T) {
	out := Letterbox(solid(500, 2000, color.Black), CanvasSide)
	// Scaled to 270x1080, centered horizontally.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, out.RGBAAt(300, 540))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, out.RGBAAt(540, 540))
}
