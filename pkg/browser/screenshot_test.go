package browser

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}
	return buf.Bytes()
}

func TestDownscalePassesThroughNarrowImages(t *testing.T) {
	src := encodePNG(t, 100, 50)
	out, err := Downscale(src, 1024)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}
	if !bytes.Equal(src, out) {
		t.Fatal("expected narrower-than-max images to pass through unchanged")
	}
}

func TestDownscaleShrinksWideImages(t *testing.T) {
	src := encodePNG(t, 2000, 1000)
	out, err := Downscale(src, 1024)
	if err != nil {
		t.Fatalf("Downscale: %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode downscaled output: %v", err)
	}
	if img.Bounds().Dx() > 1024 {
		t.Fatalf("downscaled width = %d, want <= 1024", img.Bounds().Dx())
	}
	if img.Bounds().Dx() != 1024 {
		t.Fatalf("downscaled width = %d, want exactly 1024 (max width, aspect-preserved)", img.Bounds().Dx())
	}
}
