package browser

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// defaultScreenshotMaxWidth bounds the width of screenshots handed to the
// planner as evidence — full-resolution captures bloat LLM image payloads
// for no perception benefit.
const defaultScreenshotMaxWidth = 1024

// Downscale re-encodes png to PNG scaled to at most maxWidth wide,
// preserving aspect ratio. Images already narrower than maxWidth pass
// through unchanged.
func Downscale(png []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, fmt.Errorf("browser: decode screenshot: %w", err)
	}
	if img.Bounds().Dx() <= maxWidth {
		return png, nil
	}
	resized := imaging.Resize(img, maxWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, fmt.Errorf("browser: encode downscaled screenshot: %w", err)
	}
	return buf.Bytes(), nil
}
