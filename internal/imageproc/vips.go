package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os/exec"

	"github.com/gen2brain/jpegli"
	"github.com/h2non/bimg"
	"github.com/hackclub/mediafield/internal/util"
	"github.com/rs/zerolog"
)

// VipsProcessor resizes with libvips and recompresses with jpegli or
// oxipng. Files up to 1MB are passed through untouched.
type VipsProcessor struct {
	jpegQuality     int
	jpegProgressive bool
	pngStrip        bool
	logger          zerolog.Logger
}

func NewVipsProcessor(jpegQuality int, jpegProgressive, pngStrip bool, logger zerolog.Logger) *VipsProcessor {
	return &VipsProcessor{
		jpegQuality:     jpegQuality,
		jpegProgressive: jpegProgressive,
		pngStrip:        pngStrip,
		logger:          logger,
	}
}

func (p *VipsProcessor) Process(data []byte, contentType string) (*ProcessResult, error) {
	originalSize := len(data)

	if !util.IsImageMIME(contentType) {
		detected := util.DetectContentType(data)
		if !util.IsImageMIME(detected) {
			return nil, fmt.Errorf("%w, detected: %s", ErrNotImage, detected)
		}
		contentType = detected
	}
	contentType = util.NormalizeMIME(contentType)

	metadata, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read image metadata: %w", err)
	}

	if originalSize <= oneMB {
		p.logger.Debug().Int("bytes", originalSize).Msg("image under 1MB, skipping processing")
		return &ProcessResult{
			Data:           data,
			ContentType:    contentType,
			Width:          metadata.Size.Width,
			Height:         metadata.Size.Height,
			HasAlpha:       metadata.Alpha,
			OriginalSize:   originalSize,
			CompressedSize: originalSize,
		}, nil
	}

	imageToProcess := data
	if metadata.Size.Width > maxDimension || metadata.Size.Height > maxDimension {
		width, height := calculateDimensionsWithMax(metadata.Size.Width, metadata.Size.Height, maxDimension)
		p.logger.Info().
			Int("from_width", metadata.Size.Width).
			Int("from_height", metadata.Size.Height).
			Int("to_width", width).
			Int("to_height", height).
			Msg("resizing image")

		// PNG intermediate keeps quality for the compression stage
		resized, err := bimg.NewImage(data).Process(bimg.Options{
			Width:   width,
			Height:  height,
			Type:    bimg.PNG,
			Quality: 100,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resize image: %w", err)
		}
		imageToProcess = resized
	}

	transparent := hasActualTransparency(data, metadata)

	var processed []byte
	var outputType string
	if util.ShouldConvertToJPEG(contentType, transparent) {
		outputType = "image/jpeg"
		processed = p.compressJPEG(imageToProcess)
	} else {
		outputType = "image/png"
		processed = p.compressPNG(imageToProcess)
	}

	final, err := bimg.NewImage(processed).Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read final image metadata: %w", err)
	}

	p.logger.Info().
		Int("original_size", originalSize).
		Int("compressed_size", len(processed)).
		Str("content_type", outputType).
		Msg("image processed")

	return &ProcessResult{
		Data:           processed,
		ContentType:    outputType,
		Width:          final.Size.Width,
		Height:         final.Size.Height,
		HasAlpha:       final.Alpha,
		OriginalSize:   originalSize,
		CompressedSize: len(processed),
	}, nil
}

// compressJPEG encodes with jpegli, falling back to libvips and finally to
// the input.
func (p *VipsProcessor) compressJPEG(input []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(input))
	if err == nil {
		progressive := 0
		if p.jpegProgressive {
			progressive = 2
		}
		var buf bytes.Buffer
		err = jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
			Quality:              p.jpegQuality,
			ProgressiveLevel:     progressive,
			OptimizeCoding:       true,
			AdaptiveQuantization: true,
			FancyDownsampling:    true,
			ChromaSubsampling:    image.YCbCrSubsampleRatio444,
		})
		if err == nil {
			return buf.Bytes()
		}
	}
	p.logger.Warn().Err(err).Msg("jpegli encoding failed, falling back to libvips")

	out, err := bimg.NewImage(input).Process(bimg.Options{
		Type:           bimg.JPEG,
		Quality:        p.jpegQuality,
		StripMetadata:  true,
		Interpretation: bimg.InterpretationSRGB,
	})
	if err != nil {
		p.logger.Warn().Err(err).Msg("libvips JPEG compression failed, keeping original")
		return input
	}
	return out
}

// compressPNG runs oxipng losslessly. oxipng writes nothing when it cannot
// improve the file.
func (p *VipsProcessor) compressPNG(input []byte) []byte {
	strip := "none"
	if p.pngStrip {
		strip = "safe"
	}
	cmd := exec.Command("oxipng", "-o", "4", "--strip", strip, "-i", "0", "-")

	var out, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Warn().Err(err).Str("stderr", stderr.String()).Msg("oxipng failed, keeping unoptimized PNG")
		return input
	}
	if out.Len() == 0 {
		return input
	}
	return out.Bytes()
}

// hasActualTransparency samples a 20x20 grid of pixels and reports whether
// any of them is not fully opaque.
func hasActualTransparency(data []byte, metadata bimg.ImageMetadata) bool {
	if !metadata.Alpha {
		return false
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return true
	}

	bounds := img.Bounds()
	step := max(1, max(bounds.Dx()/20, bounds.Dy()/20))
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}
