package images

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/png"

	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp"
)

const (
	// maxDimension bounds the longest side of a normalized image.
	maxDimension = 2048
	// jpegQuality is the fixed re-encode quality for stored blobs.
	jpegQuality = 85
)

// Normalize converts an uploaded photo into a bounded jpeg. HEIC
// containers are decoded through their own decoder using the filename
// hint; everything else goes through the stdlib registry (jpeg, png,
// gif, webp). Output is always jpeg so downstream consumers never
// need per-file format detection. Images larger than maxDimension on
// either side are shrunk preserving aspect ratio; smaller images are
// never upscaled.
func Normalize(raw []byte, filename string) ([]byte, error) {
	decoded, err := decode(raw, filename)
	if err != nil {
		return nil, fmt.Errorf("images: decoding %q: %w", filepath.Base(filename), err)
	}

	bounded := shrinkToFit(decoded, maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, bounded, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("images: encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(raw []byte, filename string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".heic", ".heif":
		return heic.Decode(bytes.NewReader(raw))
	default:
		decoded, _, err := image.Decode(bytes.NewReader(raw))
		return decoded, err
	}
}

func shrinkToFit(src image.Image, bound int) image.Image {
	srcBounds := src.Bounds()
	width := srcBounds.Dx()
	height := srcBounds.Dy()
	if width <= bound && height <= bound {
		return src
	}

	scaledWidth := bound
	scaledHeight := bound
	if width > height {
		scaledHeight = height * bound / width
	} else {
		scaledWidth = width * bound / height
	}
	if scaledWidth < 1 {
		scaledWidth = 1
	}
	if scaledHeight < 1 {
		scaledHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, draw.Over, nil)
	return dst
}
