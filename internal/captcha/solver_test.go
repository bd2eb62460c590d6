package captcha

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocessThresholdsToBlackAndWhite(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255}) // glyph pixel
	src.Set(1, 0, color.RGBA{R: 10, G: 10, B: 10, A: 255})    // background
	src.Set(0, 1, color.RGBA{R: 220, G: 40, B: 40, A: 255})   // colored clutter
	src.Set(1, 1, color.RGBA{R: 210, G: 210, B: 210, A: 255}) // light gray glyph edge

	out, err := Preprocess(encodePNG(t, src))
	require.NoError(t, err)

	dec, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	at := func(x, y int) uint8 {
		return color.GrayModel.Convert(dec.At(x, y)).(color.Gray).Y
	}
	require.EqualValues(t, 255, at(0, 0), "white stays white")
	require.EqualValues(t, 0, at(1, 0), "dark background goes black")
	require.EqualValues(t, 0, at(0, 1), "colored clutter goes black")
	require.EqualValues(t, 255, at(1, 1), "light gray above threshold goes white")
}

func TestPreprocessRejectsGarbage(t *testing.T) {
	_, err := Preprocess([]byte("not an image"))
	require.Error(t, err)
}
