package scheduler

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/uid"
)

// Fingerprint mutation keeps relisted items from being matched to their
// deleted predecessors. Text alternates a trailing space on relist count
// parity; images get a handful of sub-perceptual pixel changes.

const (
	jitterPixels   = 5
	jitterMaxDelta = 3
	jpegQuality    = 95
)

// JitterText appends or strips one trailing space based on relist count
// parity. Deterministic given the count, so the title flips back and forth
// across consecutive relists.
func JitterText(text string, relistCount int) string {
	stripped := trimTrailingSpaces(text)
	if relistCount%2 == 0 {
		return stripped + " "
	}
	return stripped
}

func trimTrailingSpaces(s string) string {
	end := len(s)
	for end > 0 && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[:end]
}

// MutateImage decodes an image, nudges a few random pixels by up to ±3 per
// RGB channel, and re-encodes as JPEG. Dimensions are preserved; the change
// is invisible but the bytes are unique.
func MutateImage(data []byte, rng *rand.Rand) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	img := image.NewRGBA(bounds)
	draw.Draw(img, bounds, src, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()
	for i := 0; i < jitterPixels; i++ {
		x := bounds.Min.X + rng.Intn(w)
		y := bounds.Min.Y + rng.Intn(h)
		offset := img.PixOffset(x, y)
		for c := 0; c < 3; c++ {
			delta := rng.Intn(2*jitterMaxDelta+1) - jitterMaxDelta
			img.Pix[offset+c] = clampByte(int(img.Pix[offset+c]) + delta)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode mutated image: %w", err)
	}
	return buf.Bytes(), nil
}

// MutateImageFile mutates the image at srcPath and writes the result as a
// new JPEG under destDir, returning the written path.
func MutateImageFile(srcPath, destDir string, rng *rand.Rand) (string, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", srcPath, err)
	}

	mutated, err := MutateImage(data, rng)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	destPath := filepath.Join(destDir, uid.New()+".jpg")
	if err := os.WriteFile(destPath, mutated, 0o644); err != nil {
		return "", fmt.Errorf("failed to write mutated image: %w", err)
	}
	return destPath, nil
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
