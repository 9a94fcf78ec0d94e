package imageproc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int, alpha uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 10, B: 10, A: alpha})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestSimpleProcessorSmallPNG(t *testing.T) {
	p := NewSimpleProcessor(80)

	res, err := p.Process(encodePNG(t, 4, 3, 128), "image/png")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ContentType != "image/png" {
		t.Errorf("ContentType = %s, want image/png", res.ContentType)
	}
	if res.Width != 4 || res.Height != 3 {
		t.Errorf("size = %dx%d, want 4x3", res.Width, res.Height)
	}
	if !res.HasAlpha {
		t.Error("translucent image reported without alpha")
	}
	if res.CompressedSize != len(res.Data) {
		t.Errorf("CompressedSize = %d, len(Data) = %d", res.CompressedSize, len(res.Data))
	}
}

func TestSimpleProcessorRejectsNonImage(t *testing.T) {
	p := NewSimpleProcessor(80)
	if _, err := p.Process([]byte("hello"), "text/plain"); !errors.Is(err, ErrNotImage) {
		t.Errorf("error = %v, want ErrNotImage", err)
	}
}

func TestCalculateDimensionsWithMax(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{100, 50, 3840, 100, 50},
		{7680, 3840, 3840, 3840, 1920},
		{2000, 8000, 3840, 960, 3840},
	}
	for _, tt := range tests {
		w, h := calculateDimensionsWithMax(tt.w, tt.h, tt.max)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("calculateDimensionsWithMax(%d, %d, %d) = %d, %d, want %d, %d",
				tt.w, tt.h, tt.max, w, h, tt.wantW, tt.wantH)
		}
	}
}
