package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"net/http"

	"github.com/msomdec/murmur/internal/domain"
	"golang.org/x/image/draw"
)

const (
	maxImageSize   = 10 * 1024 * 1024 // 10MB
	maxImagePixels = 50_000_000
	jpegQuality    = 85

	avatarSize = 350

	maxPostImageWidth  = 1080
	maxPostImageHeight = 720
)

var acceptedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// ImageProcessor normalizes uploaded images before they are stored. Output
// is always JPEG.
type ImageProcessor struct {
	scaler draw.Scaler
}

// NewImageProcessor creates an ImageProcessor using Catmull-Rom resampling.
func NewImageProcessor() *ImageProcessor {
	return &ImageProcessor{scaler: draw.CatmullRom}
}

// Avatar crops data to a centered square and scales it to 350x350.
func (p *ImageProcessor) Avatar(data []byte) ([]byte, error) {
	src, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	crop := centerSquare(src.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, avatarSize, avatarSize))
	p.scaler.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return encodeJPEG(dst)
}

// PostImage scales data down to fit inside 1080x720, keeping its aspect
// ratio. Smaller images are re-encoded at their original size.
func (p *ImageProcessor) PostImage(data []byte) ([]byte, error) {
	src, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	w, h := fitInside(b.Dx(), b.Dy(), maxPostImageWidth, maxPostImageHeight)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		p.scaler.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return encodeJPEG(dst)
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", domain.ErrInvalidInput)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("%w: image exceeds 10MB limit", domain.ErrInvalidInput)
	}
	if ct := http.DetectContentType(data); !acceptedImageTypes[ct] {
		return nil, fmt.Errorf("%w: only JPEG, PNG and GIF images are accepted", domain.ErrInvalidInput)
	}

	// Decode allocates from the declared dimensions before reading pixels.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image: %v", domain.ErrInvalidInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxImagePixels {
		return nil, fmt.Errorf("%w: image dimensions %dx%d are not accepted", domain.ErrInvalidInput, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode image: %v", domain.ErrInvalidInput, err)
	}
	return img, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// centerSquare returns the largest square centered in r.
func centerSquare(r image.Rectangle) image.Rectangle {
	side := min(r.Dx(), r.Dy())
	x := r.Min.X + (r.Dx()-side)/2
	y := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x, y, x+side, y+side)
}

// fitInside scales w x h down to fit maxW x maxH. It never enlarges.
func fitInside(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	if w*maxH > h*maxW {
		return maxW, max(1, h*maxW/w)
	}
	return max(1, w*maxH/h), maxH
}
