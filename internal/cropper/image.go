package cropper

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder

	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/faces"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// CropJPEG decodes src, cuts out rect and re-encodes it as JPEG.
// The rectangle must lie within the image bounds. Images declaring more than
// constants.MaxSourcePixels are rejected before any pixel data is decoded.
func CropJPEG(src []byte, rect image.Rectangle, quality int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faces.ErrDecode, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > constants.MaxSourcePixels {
		return nil, fmt.Errorf("%w: %dx%d pixels", faces.ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faces.ErrDecode, err)
	}

	bounds := img.Bounds()
	// Decoded images may not start at the origin.
	rect = rect.Add(bounds.Min)
	if rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("%w: %v outside image bounds %v", faces.ErrCrop, rect, bounds)
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
