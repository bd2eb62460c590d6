// Package captcha turns the portal's distorted JPEG captchas into text.
package captcha

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	_ "image/jpeg"

	"github.com/disintegration/imaging"
)

// Solver recognizes the text in a captcha image. Implementations may be
// slow; they must honor the context.
type Solver interface {
	Solve(ctx context.Context, img []byte) (string, error)
}

// whiteThreshold separates the light glyphs from the noisy background. The
// portal renders the captcha text near-white over colored clutter, so a high
// cut keeps the glyphs and drops everything else.
const whiteThreshold = 200

// Preprocess flattens a captcha to a black-and-white PNG the OCR engine can
// read: grayscale first, then a hard threshold that keeps only near-white
// pixels.
func Preprocess(raw []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("captcha: decode image: %w", err)
	}
	gray := imaging.Grayscale(src)
	b := gray.Bounds()
	bin := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(gray.At(x, y)).(color.Gray)
			if g.Y > whiteThreshold {
				bin.SetGray(x, y, color.Gray{Y: 255})
			} else {
				bin.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, bin); err != nil {
		return nil, fmt.Errorf("captcha: encode image: %w", err)
	}
	return buf.Bytes(), nil
}
