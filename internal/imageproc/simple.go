package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/hackclub/mediafield/internal/util"
)

// SimpleProcessor re-encodes with the standard library codecs. It is used
// for the local development host where libvips may not be installed.
type SimpleProcessor struct {
	jpegQuality int
}

func NewSimpleProcessor(jpegQuality int) *SimpleProcessor {
	return &SimpleProcessor{jpegQuality: jpegQuality}
}

func (p *SimpleProcessor) Process(data []byte, contentType string) (*ProcessResult, error) {
	if !util.IsImageMIME(contentType) {
		contentType = util.DetectContentType(data)
		if !util.IsImageMIME(contentType) {
			return nil, fmt.Errorf("%w, detected: %s", ErrNotImage, contentType)
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()

	var buf bytes.Buffer
	outputType := "image/png"
	// large opaque PNGs and JPEGs come out as JPEG
	if format == "jpeg" || (format == "png" && len(data) > oneMB && opaque(img)) {
		outputType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.jpegQuality})
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", outputType, err)
	}

	return &ProcessResult{
		Data:           buf.Bytes(),
		ContentType:    outputType,
		Width:          bounds.Dx(),
		Height:         bounds.Dy(),
		HasAlpha:       outputType == "image/png" && !opaque(img),
		OriginalSize:   len(data),
		CompressedSize: buf.Len(),
	}, nil
}

func opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
