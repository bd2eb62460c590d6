package captcha

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// alnum is the full glyph alphabet the portal uses; constraining the engine
// to it avoids punctuation misreads.
const alnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Tesseract solves captchas with a local tesseract installation via
// gosseract. Each Solve spins up its own engine client, so the type is safe
// for concurrent use.
type Tesseract struct{}

// NewTesseract returns a Solver backed by the tesseract OCR engine.
func NewTesseract() *Tesseract { return &Tesseract{} }

// Solve preprocesses the image and runs single-line OCR over it.
func (t *Tesseract) Solve(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	pre, err := Preprocess(img)
	if err != nil {
		return "", err
	}
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", err
	}
	if err := client.SetWhitelist(alnum); err != nil {
		return "", err
	}
	if err := client.SetImageFromBytes(pre); err != nil {
		return "", err
	}
	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
