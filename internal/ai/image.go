package ai

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

// passthroughTypes are accepted by vision endpoints as-is.
var passthroughTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// convertTypes are decodable but must be re-encoded as JPEG before sending.
var convertTypes = map[string]bool{
	"image/bmp":  true,
	"image/tiff": true,
}

// SniffImage detects the image type from content. Empty input and
// unsupported formats are inference errors.
func SniffImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errkind.Wrap(errkind.ErrInference, "empty image", nil)
	}
	mime := mimetype.Detect(data).String()
	if !passthroughTypes[mime] && !convertTypes[mime] {
		return "", errkind.Wrap(errkind.ErrInference, "unsupported image type "+mime, nil)
	}
	return mime, nil
}

// PrepareImage returns bytes and MIME type ready to send to a vision model.
// Images are downscaled when maxSize > 0, formats outside the passthrough set
// are re-encoded as JPEG.
func PrepareImage(data []byte, maxSize int) ([]byte, string, error) {
	mime, err := SniffImage(data)
	if err != nil {
		return nil, "", err
	}

	if maxSize <= 0 && passthroughTypes[mime] {
		return data, mime, nil
	}

	size := maxSize
	if size <= 0 {
		size = 1 << 30
	}
	out, err := ResizeImage(data, size)
	if err != nil {
		return nil, "", errkind.Wrap(errkind.ErrInference, "prepare image", err)
	}
	return out, "image/jpeg", nil
}

// ResizeImage resizes an image to fit within maxSize (width or height) while keeping aspect ratio.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	// Check if resizing is needed.
	if width <= maxSize && height <= maxSize {
		// Re-encode as JPEG to ensure consistent format.
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	// Calculate new dimensions.
	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}
