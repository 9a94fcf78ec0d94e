// Package imageproc normalises uploaded images before they are stored on a
// self-hosted media host.
package imageproc

import "errors"

var ErrNotImage = errors.New("input is not a valid image format")

// Processor turns an upload into the bytes that get stored.
type Processor interface {
	Process(data []byte, contentType string) (*ProcessResult, error)
}

type ProcessResult struct {
	Data           []byte
	ContentType    string
	Width          int
	Height         int
	HasAlpha       bool
	OriginalSize   int
	CompressedSize int
}

const (
	oneMB        = 1024 * 1024
	maxDimension = 3840
)

// calculateDimensionsWithMax keeps the aspect ratio while capping both sides
// at maxDimension.
func calculateDimensionsWithMax(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	ratio := float64(width) / float64(height)
	if width > height {
		return maxDimension, int(float64(maxDimension) / ratio)
	}
	return int(float64(maxDimension) * ratio), maxDimension
}
